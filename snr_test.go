package awmkit

import (
	"math"
	"testing"
)

func TestComputeSNRIdentical(t *testing.T) {
	sig := []float64{1, -1, 1, -1}
	res := ComputeSNR(sig, sig)
	if res.Status != SNROk {
		t.Fatalf("status = %v, want SNROk", res.Status)
	}
	if !math.IsInf(res.DB, 1) {
		t.Errorf("DB = %v, want +Inf for identical signals", res.DB)
	}
}

func TestComputeSNRWithNoise(t *testing.T) {
	sig := []float64{1, 1, 1, 1}
	noisy := []float64{1.1, 0.9, 1.1, 0.9}
	res := ComputeSNR(sig, noisy)
	if res.Status != SNROk {
		t.Fatalf("status = %v, want SNROk", res.Status)
	}
	if res.DB <= 0 {
		t.Errorf("DB = %v, want > 0 for small noise relative to signal", res.DB)
	}
}

func TestComputeSNRLengthMismatch(t *testing.T) {
	res := ComputeSNR([]float64{1, 2, 3}, []float64{1, 2})
	if res.Status != SNRError {
		t.Errorf("status = %v, want SNRError", res.Status)
	}
}

func TestComputeSNREmpty(t *testing.T) {
	res := ComputeSNR(nil, nil)
	if res.Status != SNRError {
		t.Errorf("status = %v, want SNRError", res.Status)
	}
}
