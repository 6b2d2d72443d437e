package hotword

// NoDetection is returned by Classify when no hotword fired.
const NoDetection = -1

// Interface scores chunks of captured audio. Implementations keep their own
// rolling state and are called from a single capture loop.
type Interface interface {
	// Classify returns the index of the hotword heard in chunk, or
	// NoDetection.
	Classify(chunk []byte) (int, error)
	NumHotwords() int
}
