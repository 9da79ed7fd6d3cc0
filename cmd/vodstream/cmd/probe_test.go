package cmd

import "testing"

func TestAverageMinimumMaximum(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	if got := average(vals); got != 2.5 {
		t.Errorf("average() = %v, want 2.5", got)
	}
	if got := minimum(vals); got != 1 {
		t.Errorf("minimum() = %v, want 1", got)
	}
	if got := maximum(vals); got != 4 {
		t.Errorf("maximum() = %v, want 4", got)
	}
}
