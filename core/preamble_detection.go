package core

import "github.com/signalsfoundry/wlan-simulator/model"

// PreambleDetectionModel decides whether the receiver locks onto an
// incoming preamble given the measured signal level and SINR at the end
// of the detection period.
type PreambleDetectionModel interface {
	// IsDetected reports whether the preamble is detected. rxPowerW is
	// the signal power in the primary band; snr is the linear SINR over
	// the detection period.
	IsDetected(rxPowerW, snr float64) bool
}

// ThresholdPreambleDetectionModel detects a preamble when the SINR
// reaches a minimum and the signal itself is above a minimum RSSI.
type ThresholdPreambleDetectionModel struct {
	// MinSnrDb is the SINR required for detection. Default 4 dB.
	MinSnrDb float64
	// MinRssiDbm is the floor below which no preamble is ever found.
	// Default -82 dBm.
	MinRssiDbm float64
}

// NewThresholdPreambleDetectionModel returns the model with its default
// thresholds.
func NewThresholdPreambleDetectionModel() *ThresholdPreambleDetectionModel {
	return &ThresholdPreambleDetectionModel{MinSnrDb: 4, MinRssiDbm: -82}
}

// IsDetected implements PreambleDetectionModel.
func (m *ThresholdPreambleDetectionModel) IsDetected(rxPowerW, snr float64) bool {
	if model.WToDbm(rxPowerW) < m.MinRssiDbm {
		return false
	}
	return model.RatioToDb(snr) >= m.MinSnrDb
}
