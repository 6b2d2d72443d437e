package voice_activity_detection

import (
	"math"
	"math/rand/v2"
	"testing"
)

func sine(n int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func noise(n int, amplitude int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestVAD_Flux(t *testing.T) {
	t.Run("steady signal has no flux after the first frame", func(t *testing.T) {
		v := New(512)
		frame := sine(512, 440, 8000)

		if first := v.Flux(frame); first <= 0 {
			t.Fatalf("first flux = %f, want > 0", first)
		}
		if second := v.Flux(frame); second > 1e-9 {
			t.Errorf("second flux = %f, want 0", second)
		}
	})

	t.Run("louder frame raises flux", func(t *testing.T) {
		v := New(512)
		v.Flux(sine(512, 440, 100))

		if got := v.Flux(sine(512, 440, 10000)); got <= 0 {
			t.Errorf("flux = %f, want > 0", got)
		}
	})
}

func TestVAD_Active(t *testing.T) {
	v := New(512)
	quiet := noise(512, 20)

	for i := 0; i < 5; i++ {
		if v.Active(quiet) {
			t.Fatalf("quiet frame %d reported active", i)
		}
	}

	if !v.Active(sine(512, 300, 12000)) {
		t.Error("loud voiced frame not reported active")
	}

	v.Reset()
	if v.Active(sine(512, 300, 12000)) {
		t.Error("first frame after Reset should only seed the baseline")
	}
}

// randomNoise is uniform noise in [-amplitude, amplitude].
func randomNoise(r *rand.Rand, n int, amplitude int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(r.IntN(2*amplitude+1) - amplitude)
	}
	return out
}

func TestVAD_AdaptsToBackground(t *testing.T) {
	tests := []struct {
		name  string
		quiet func(r *rand.Rand) []int16
		loud  int
	}{
		{
			name:  "noise floor steps up",
			quiet: func(r *rand.Rand) []int16 { return randomNoise(r, 512, 50) },
			loud:  400,
		},
		{
			name:  "digital silence then room noise",
			quiet: func(*rand.Rand) []int16 { return make([]int16, 512) },
			loud:  30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewPCG(1, 2))
			v := New(512)

			for range 20 {
				v.Active(tt.quiet(r))
			}

			if !v.Active(randomNoise(r, 512, tt.loud)) {
				t.Error("the step itself should count as activity")
			}

			active := 0
			for i := range 500 {
				if v.Active(randomNoise(r, 512, tt.loud)) && i >= 100 {
					active++
				}
			}
			if active != 0 {
				t.Errorf("steady background judged active on %d of the last 400 frames", active)
			}
		})
	}
}
