package awmkit

import "math"

// SNRStatus reports how an SNR computation went.
type SNRStatus int

const (
	SNRUnavailable SNRStatus = iota
	SNRError
	SNROk
)

// SNRResult carries the computed dB value alongside its status; DB is only
// meaningful when Status == SNROk.
type SNRResult struct {
	Status SNRStatus
	DB     float64
	Reason string
}

// ComputeSNR computes 10*log10(sum(x^2) / sum((x-y)^2)) over two
// equal-length, equal-channel-count PCM buffers already decoded and
// aligned by the caller (PCM decoding itself is out of scope here).
func ComputeSNR(original, watermarked []float64) SNRResult {
	if len(original) != len(watermarked) {
		return SNRResult{Status: SNRError, Reason: "sample count mismatch"}
	}
	if len(original) == 0 {
		return SNRResult{Status: SNRError, Reason: "empty signal"}
	}

	var signal, noise float64
	for i := range original {
		signal += original[i] * original[i]
		d := original[i] - watermarked[i]
		noise += d * d
	}
	if noise == 0 {
		return SNRResult{Status: SNROk, DB: math.Inf(1)}
	}
	if signal == 0 {
		return SNRResult{Status: SNRError, Reason: "silent reference signal"}
	}
	return SNRResult{Status: SNROk, DB: 10 * math.Log10(signal/noise)}
}
