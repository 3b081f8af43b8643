package core

import (
	"time"

	"github.com/signalsfoundry/wlan-simulator/model"
)

// Event is one signal arrival at the receiver: the PPDU (if decodable),
// its transmission vector, the absolute start and end times, and the
// received power per frequency band in linear watts.
//
// An Event is immutable once created. It is shared read-only between the
// interference ledger, the receiver's current-event pointer and any
// scheduled callbacks; the garbage collector frees it once the last
// holder lets go.
type Event struct {
	ppdu     *model.Ppdu // nil for foreign (non-decodable) signals
	txVector model.TxVector
	start    time.Time
	end      time.Time
	rxPowerW map[model.Band]float64
}

func newEvent(ppdu *model.Ppdu, txVector model.TxVector, start time.Time, duration time.Duration, rxPowerW map[model.Band]float64) *Event {
	copied := make(map[model.Band]float64, len(rxPowerW))
	for b, p := range rxPowerW {
		copied[b] = p
	}
	return &Event{
		ppdu:     ppdu,
		txVector: txVector,
		start:    start,
		end:      start.Add(duration),
		rxPowerW: copied,
	}
}

// Ppdu returns the PPDU carried by this signal, nil for foreign signals.
func (e *Event) Ppdu() *model.Ppdu { return e.ppdu }

// TxVector returns the transmission vector of the signal.
func (e *Event) TxVector() model.TxVector { return e.txVector }

// StartTime returns the absolute start time of the signal.
func (e *Event) StartTime() time.Time { return e.start }

// EndTime returns the absolute end time of the signal.
func (e *Event) EndTime() time.Time { return e.end }

// Duration returns the signal duration.
func (e *Event) Duration() time.Duration { return e.end.Sub(e.start) }

// RxPowerW returns the received power in the given band, zero when the
// signal does not occupy it.
func (e *Event) RxPowerW(band model.Band) float64 { return e.rxPowerW[band] }

// RxPowerPerBand returns the full band-to-power map. Callers must not
// mutate it.
func (e *Event) RxPowerPerBand() map[model.Band]float64 { return e.rxPowerW }
