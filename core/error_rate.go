package core

import (
	"math"

	"github.com/signalsfoundry/wlan-simulator/model"
)

// ErrorRateModel maps an instantaneous SINR and a chunk of bits to the
// probability that the whole chunk decodes correctly. The interference
// tracker supplies correctly time-sliced SINR values; the model supplies
// the modulation-specific curve.
type ErrorRateModel interface {
	// ChunkSuccessRate returns the probability, in [0,1], that nbits
	// transmitted with the given mode decode correctly at the given
	// linear SINR.
	ChunkSuccessRate(mode model.Mode, snr float64, nbits uint64) float64
}

// AnalyticErrorRateModel derives chunk success rates from standard
// uncoded bit-error-rate expressions for M-QAM over AWGN, with a fixed
// coding gain per coding rate. It is an analytic stand-in for
// demodulation, not a demodulator.
type AnalyticErrorRateModel struct{}

// NewAnalyticErrorRateModel returns the default error-rate model.
func NewAnalyticErrorRateModel() *AnalyticErrorRateModel {
	return &AnalyticErrorRateModel{}
}

// ChunkSuccessRate implements ErrorRateModel. Bit errors within a chunk
// are treated as independent, so the chunk succeeds with (1-BER)^nbits.
func (m *AnalyticErrorRateModel) ChunkSuccessRate(mode model.Mode, snr float64, nbits uint64) float64 {
	if nbits == 0 {
		return 1
	}
	if snr <= 0 {
		return 0
	}
	ber := codedBer(mode, snr)
	if ber <= 0 {
		return 1
	}
	if ber >= 0.5 {
		return 0
	}
	return math.Pow(1-ber, float64(nbits))
}

// codedBer approximates the post-decoding bit error rate for the mode at
// the given linear SNR.
func codedBer(mode model.Mode, snr float64) float64 {
	effSnr := snr * codingGain(mode.CodingRate)
	switch mode.ConstellationSize {
	case 2:
		// BPSK
		return 0.5 * math.Erfc(math.Sqrt(effSnr))
	case 4:
		// QPSK
		return 0.5 * math.Erfc(math.Sqrt(effSnr/2))
	default:
		// Square M-QAM approximation.
		m := float64(mode.ConstellationSize)
		k := math.Log2(m)
		arg := math.Sqrt(3 * effSnr / (2 * (m - 1)))
		return 2 / k * (1 - 1/math.Sqrt(m)) * math.Erfc(arg)
	}
}

// codingGain maps a convolutional coding rate to an effective linear SNR
// gain. Stronger codes protect more.
func codingGain(rate float64) float64 {
	switch {
	case rate <= 0.5:
		return model.DbToRatio(4.0)
	case rate <= 2.0/3:
		return model.DbToRatio(3.0)
	case rate <= 0.75:
		return model.DbToRatio(2.5)
	default:
		return model.DbToRatio(2.0)
	}
}

// ThresholdErrorRateModel decodes a chunk perfectly at or above a fixed
// SNR threshold and not at all below it. Deterministic behaviour makes it
// the model of choice for state-machine tests.
type ThresholdErrorRateModel struct {
	// ThresholdDb is the minimum SNR for successful decoding.
	ThresholdDb float64
}

// ChunkSuccessRate implements ErrorRateModel.
func (m *ThresholdErrorRateModel) ChunkSuccessRate(_ model.Mode, snr float64, nbits uint64) float64 {
	if nbits == 0 {
		return 1
	}
	if model.RatioToDb(snr) >= m.ThresholdDb {
		return 1
	}
	return 0
}
