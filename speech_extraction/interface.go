package speech_extraction

import "opsdroid-audio/audio"

// Interface decides, frame by frame, where a recorded utterance ends.
type Interface interface {
	// Start opens a new recording session, discarding any previous one.
	Start()
	// Push appends frame to the session. When the frame completes the
	// utterance, the accumulated audio is returned with done set and the
	// endpointer goes back to idle.
	Push(frame []byte) (utterance []byte, done bool)
	Recording() bool
	// Reset drops the session and returns what had been accumulated.
	Reset() []byte
	FramesSinceStart() int
	SilentFrames() int
}

type ArchiveInterface interface {
	Archive(utt audio.Utterance) (string, error)
}
