package model

// FailureReason codes why a reception was dropped or failed. All aborts
// funnel through one reason-coded notification path so MAC retry logic
// and traces can tell capture-effect switches from genuine decode
// failures.
type FailureReason int

const (
	FailureUnknown FailureReason = iota
	FailureUnsupportedSettings
	FailureNotAllowed
	FailureErroneousFrame
	FailurePreambleDetect
	FailureLSig
	FailureSigA
	FailurePreambleDetectionPacketSwitch
	FailureFrameCapturePacketSwitch
	FailureObssPdCcaReset
)

func (r FailureReason) String() string {
	switch r {
	case FailureUnsupportedSettings:
		return "UNSUPPORTED_SETTINGS"
	case FailureNotAllowed:
		return "NOT_ALLOWED"
	case FailureErroneousFrame:
		return "ERRONEOUS_FRAME"
	case FailurePreambleDetect:
		return "PREAMBLE_DETECT_FAILURE"
	case FailureLSig:
		return "L_SIG_FAILURE"
	case FailureSigA:
		return "SIG_A_FAILURE"
	case FailurePreambleDetectionPacketSwitch:
		return "PREAMBLE_DETECTION_PACKET_SWITCH"
	case FailureFrameCapturePacketSwitch:
		return "FRAME_CAPTURE_PACKET_SWITCH"
	case FailureObssPdCcaReset:
		return "OBSS_PD_CCA_RESET"
	default:
		return "UNKNOWN"
	}
}

// SignalNoise carries measured signal and noise levels in dBm, as fed to
// the monitor-sniffer callback.
type SignalNoise struct {
	SignalDbm float64
	NoiseDbm  float64
}

// MpduInfo describes the aggregation context of a sniffed PSDU: whether
// its MPDUs were aggregated and a per-PPDU reference number so captures
// of the same aggregate can be correlated.
type MpduInfo struct {
	Aggregated bool
	RefNumber  uint32
}

// RxSignalInfo summarises the received signal for the success callback.
type RxSignalInfo struct {
	Snr     float64 // linear
	RssiDbm float64
}
