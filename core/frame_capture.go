package core

import (
	"time"

	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// FrameCaptureModel decides whether the receiver abandons the signal it
// is currently decoding in favour of a newly arrived, stronger one
// (capture effect). The decision only ever applies before the current
// frame's header has completed; the receiver enforces that part.
type FrameCaptureModel interface {
	// CaptureNewFrame reports whether reception should switch from
	// current to candidate. band is the band the powers are compared in.
	CaptureNewFrame(current, candidate *Event, band model.Band) bool
	// IsInCaptureWindow reports whether a switch is still permitted for
	// a reception that started at the given time.
	IsInCaptureWindow(receptionStart time.Time) bool
}

// SimpleFrameCaptureModel captures when the candidate exceeds the current
// signal by a fixed margin, within a fixed window from reception start.
type SimpleFrameCaptureModel struct {
	// MarginDb is the power advantage the new frame needs. Default 5 dB.
	MarginDb float64
	// Window is how long after reception start capture remains possible.
	// Default 16 us.
	Window time.Duration

	clock timectrl.Clock
}

// NewSimpleFrameCaptureModel returns the model with default margin and
// window, reading time from the given clock.
func NewSimpleFrameCaptureModel(clock timectrl.Clock) *SimpleFrameCaptureModel {
	return &SimpleFrameCaptureModel{
		MarginDb: 5,
		Window:   16 * time.Microsecond,
		clock:    clock,
	}
}

// CaptureNewFrame implements FrameCaptureModel.
func (m *SimpleFrameCaptureModel) CaptureNewFrame(current, candidate *Event, band model.Band) bool {
	curW := current.RxPowerW(band)
	newW := candidate.RxPowerW(band)
	if curW <= 0 {
		return newW > 0
	}
	return model.RatioToDb(newW/curW) >= m.MarginDb
}

// IsInCaptureWindow implements FrameCaptureModel.
func (m *SimpleFrameCaptureModel) IsInCaptureWindow(receptionStart time.Time) bool {
	return !m.clock.Now().After(receptionStart.Add(m.Window))
}
