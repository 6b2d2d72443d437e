package device

import "testing"

func TestChunks(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 4, nil},
		{"exact", 8, 4, []int{4, 4}},
		{"short tail", 10, 4, []int{4, 4, 2}},
		{"smaller than one buffer", 3, 4, []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]int16, tt.n)
			for i := range samples {
				samples[i] = int16(i)
			}

			got := chunks(samples, tt.size)
			if len(got) != len(tt.sizes) {
				t.Fatalf("got %d chunks, want %d", len(got), len(tt.sizes))
			}

			next := int16(0)
			for i, c := range got {
				if len(c) != tt.sizes[i] {
					t.Errorf("chunk %d has %d samples, want %d", i, len(c), tt.sizes[i])
				}
				for _, s := range c {
					if s != next {
						t.Fatalf("sample out of order: got %d, want %d", s, next)
					}
					next++
				}
			}
		})
	}
}
