package delay

import (
	"math/rand"
	"testing"
	"time"
)

func TestFromPreset(t *testing.T) {
	tests := []struct {
		name string
		min  int
		max  int
		ok   bool
	}{
		{"fast", 3, 8, true},
		{"moderate", 8, 20, true},
		{"conservative", 20, 45, true},
		{"unknown", 0, 0, false},
	}

	for _, tt := range tests {
		p, ok := FromPreset(tt.name)
		if ok != tt.ok {
			t.Errorf("FromPreset(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if ok && (p.MinSeconds != tt.min || p.MaxSeconds != tt.max) {
			t.Errorf("FromPreset(%q) = [%d,%d], want [%d,%d]", tt.name, p.MinSeconds, p.MaxSeconds, tt.min, tt.max)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"valid", Policy{MinSeconds: 5, MaxSeconds: 10}, false},
		{"at floor", Policy{MinSeconds: 3, MaxSeconds: 5}, false},
		{"below floor", Policy{MinSeconds: 2, MaxSeconds: 10}, true},
		{"zero min", Policy{MinSeconds: 0, MaxSeconds: 10}, true},
		{"gap too small", Policy{MinSeconds: 10, MaxSeconds: 11}, true},
		{"inverted", Policy{MinSeconds: 20, MaxSeconds: 10}, true},
	}

	for _, tt := range tests {
		err := tt.policy.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestNextStaysInRange(t *testing.T) {
	p := Policy{MinSeconds: 8, MaxSeconds: 20}
	rng := rand.New(rand.NewSource(42))

	min := 8 * time.Second
	max := 20 * time.Second
	for i := 0; i < 1000; i++ {
		d := p.Next(rng)
		if d < min || d > max {
			t.Fatalf("Next() = %v, want within [%v, %v]", d, min, max)
		}
	}
}

func TestNextVaries(t *testing.T) {
	p := Policy{MinSeconds: 3, MaxSeconds: 8}
	rng := rand.New(rand.NewSource(1))

	seen := map[time.Duration]bool{}
	for i := 0; i < 100; i++ {
		seen[p.Next(rng)] = true
	}
	if len(seen) < 2 {
		t.Errorf("Next() produced %d distinct values, expected jitter", len(seen))
	}
}

func TestBatchSize(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		budget int
		want   int
	}{
		{"moderate default budget", Policy{MinSeconds: 8, MaxSeconds: 20}, 50, 3},
		{"fast", Policy{MinSeconds: 3, MaxSeconds: 8}, 50, 9},
		{"conservative clamps to one", Policy{MinSeconds: 20, MaxSeconds: 45}, 20, 1},
		{"huge budget clamps to max", Policy{MinSeconds: 3, MaxSeconds: 5}, 100000, 100},
		{"zero range clamps to one", Policy{}, 50, 1},
	}

	for _, tt := range tests {
		if got := tt.policy.BatchSize(tt.budget); got != tt.want {
			t.Errorf("%s: BatchSize(%d) = %d, want %d", tt.name, tt.budget, got, tt.want)
		}
	}
}

func TestAverage(t *testing.T) {
	p := Policy{MinSeconds: 8, MaxSeconds: 20}
	if got := p.Average(); got != 14*time.Second {
		t.Errorf("Average() = %v, want 14s", got)
	}
}
