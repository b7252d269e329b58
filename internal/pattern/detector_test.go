package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		min       float64
		intervals []int64
		want      Match
		ok        bool
	}{
		{"three intervals below sts threshold", 0.8, []int64{1000, 2000, 3000}, Match{}, false},
		{"three intervals at sts threshold", 0.9, []int64{1000, 2000, 3000}, Match{STS2, 0.95}, true},
		{"two intervals", 0.85, []int64{1000, 2000}, Match{ST2, 0.85}, true},
		{"two intervals below st threshold", 0.79, []int64{1000, 2000}, Match{}, false},
		{"four intervals", 0.75, []int64{1, 2, 3, 4}, Match{TT4, 0.75}, true},
		{"four intervals prefer sts", 0.95, []int64{1, 2, 3, 4}, Match{STS2, 0.95}, true},
		{"four intervals below tt threshold", 0.69, []int64{1, 2, 3, 4}, Match{}, false},
		{"one interval", 0.99, []int64{1000}, Match{}, false},
		{"no history", 0.99, nil, Match{}, false},
		{"five intervals below sts", 0.85, []int64{1, 2, 3, 4, 5}, Match{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewDetector(tt.min).Detect("TOKEN", tt.intervals)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectIgnoresIntervalValues(t *testing.T) {
	d := NewDetector(0.85)
	a, _ := d.Detect("A", []int64{1, 1})
	b, _ := d.Detect("B", []int64{999999, 3})
	assert.Equal(t, a, b)
}
