package voice_activity_detection

import (
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// DefaultRatio is how far spectral flux must rise above the running
	// baseline before a frame counts as voiced.
	DefaultRatio = 1.75

	// baselineDecay pulls the baseline toward the latest flux on quiet frames.
	baselineDecay = 0.9

	// activeDecay moves the baseline on active frames too, more slowly, so a
	// lasting rise in background noise stops counting as voice after a
	// second or two.
	activeDecay = 0.95
)

type vadImpl struct {
	mu           sync.Mutex
	frameSize    int
	ratio        float64
	lastSpectrum []float64
	baseline     float64
	seeded       bool
}

// New returns a spectral flux detector for frames of frameSize samples.
// Shorter frames are zero-padded; longer ones are truncated.
func New(frameSize int) Interface {
	return NewWithRatio(frameSize, DefaultRatio)
}

func NewWithRatio(frameSize int, ratio float64) Interface {
	if frameSize <= 0 {
		frameSize = 1
	}
	if ratio <= 1 {
		ratio = DefaultRatio
	}

	return &vadImpl{
		frameSize: frameSize,
		ratio:     ratio,
	}
}

// Flux is the summed positive change in FFT magnitudes since the previous
// frame. The first frame after New or Reset reports its total magnitude.
func (v *vadImpl) Flux(samples []int16) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.flux(samples)
}

func (v *vadImpl) flux(samples []int16) float64 {
	spectrum := v.spectrum(samples)

	flux := 0.0
	for i, mag := range spectrum {
		prev := 0.0
		if v.lastSpectrum != nil {
			prev = v.lastSpectrum[i]
		}
		if diff := mag - prev; diff > 0 {
			flux += diff
		}
	}

	v.lastSpectrum = spectrum

	return flux
}

func (v *vadImpl) spectrum(samples []int16) []float64 {
	in := make([]float64, v.frameSize)
	for i := 0; i < len(samples) && i < v.frameSize; i++ {
		in[i] = float64(samples[i]) / 32768
	}

	out := fft.FFTReal(in)

	// the upper half mirrors the lower half for real input
	half := len(out)/2 + 1
	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		mags[i] = cmplx.Abs(out[i])
	}

	return mags
}

// Active reports whether samples jump in spectral flux relative to recent
// history. The baseline follows quiet frames quickly and active frames
// slowly, so speech stays active for a while but noise does not forever.
func (v *vadImpl) Active(samples []int16) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	flux := v.flux(samples)

	if !v.seeded {
		v.baseline = flux
		v.seeded = true
		return false
	}

	active := flux > v.baseline*v.ratio

	decay := baselineDecay
	if active {
		decay = activeDecay
	}
	v.baseline = v.baseline*decay + flux*(1-decay)

	return active
}

func (v *vadImpl) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastSpectrum = nil
	v.baseline = 0
	v.seeded = false
}
