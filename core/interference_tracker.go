package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/wlan-simulator/internal/logging"
	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// boltzmann is the Boltzmann constant in J/K.
const boltzmann = 1.3803e-23

// thermalNoiseTempK is the reference temperature for the thermal noise
// floor.
const thermalNoiseTempK = 290.0

// SnrPer bundles the SNR (linear) and packet error rate computed for one
// evaluation window.
type SnrPer struct {
	Snr float64
	Per float64
}

// niChange records one step change in the aggregate power of a band.
// power is the total power present from this instant until the next
// change, so summing is done at insertion time and queries are lookups.
type niChange struct {
	at    time.Time
	power float64
	event *Event // the signal causing the change, nil for the seed entry
}

// InterferenceTracker keeps, per frequency band, a time-ordered ledger of
// aggregate-power change points caused by overlapping signals, and turns
// time-varying SINR into per-chunk error rates.
//
// All power values are linear watts. The tracker is driven by the single
// logical thread of the receiver state machine; it is not safe for
// concurrent use.
type InterferenceTracker struct {
	clock          timectrl.Clock
	errorRateModel ErrorRateModel
	noiseFigure    float64 // linear
	numRxAntennas  uint8
	rxing          bool

	// changes holds the sorted per-band ledgers. firstPowers holds the
	// per-band baseline power in effect before the earliest retained
	// change; past entries are folded into it when the receiver is idle.
	changes     map[model.Band][]niChange
	firstPowers map[model.Band]float64

	log logging.Logger
}

// NewInterferenceTracker constructs a tracker reading time from clock.
// The noise figure defaults to 7 dB and the antenna count to one.
func NewInterferenceTracker(clock timectrl.Clock, errorRateModel ErrorRateModel, log logging.Logger) *InterferenceTracker {
	if log == nil {
		log = logging.Noop()
	}
	return &InterferenceTracker{
		clock:          clock,
		errorRateModel: errorRateModel,
		noiseFigure:    model.DbToRatio(7),
		numRxAntennas:  1,
		changes:        make(map[model.Band][]niChange),
		firstPowers:    make(map[model.Band]float64),
		log:            log,
	}
}

// SetNoiseFigure sets the receiver noise figure in dB.
func (t *InterferenceTracker) SetNoiseFigure(db float64) {
	t.noiseFigure = model.DbToRatio(db)
}

// SetNumberOfReceiveAntennas sets the RX antenna count used for the
// diversity gain applied to SINR.
func (t *InterferenceTracker) SetNumberOfReceiveAntennas(n uint8) {
	if n == 0 {
		n = 1
	}
	t.numRxAntennas = n
}

// SetErrorRateModel replaces the error-rate model.
func (t *InterferenceTracker) SetErrorRateModel(m ErrorRateModel) {
	t.errorRateModel = m
}

// SetBands seeds ledgers for the given bands. Bands not seeded here are
// created lazily when a signal first touches them.
func (t *InterferenceTracker) SetBands(bands []model.Band) {
	for _, b := range bands {
		t.ensureBand(b)
	}
}

func (t *InterferenceTracker) ensureBand(band model.Band) {
	if _, ok := t.changes[band]; ok {
		return
	}
	t.changes[band] = nil
	t.firstPowers[band] = 0
}

// Add records a decodable signal and returns the event handle used for
// later SNR and PER queries. The power map must not be empty; an empty
// map is a collaborator contract violation.
func (t *InterferenceTracker) Add(ppdu *model.Ppdu, txVector model.TxVector, duration time.Duration, rxPowerW map[model.Band]float64) *Event {
	if len(rxPowerW) == 0 {
		panic("core: signal added with empty per-band power map")
	}
	ev := newEvent(ppdu, txVector, t.clock.Now(), duration, rxPowerW)
	t.appendEvent(ev)
	return ev
}

// AddForeignSignal records a signal with no decodable content (non-Wi-Fi
// or hopelessly corrupted); it contributes to interference and CCA energy
// only.
func (t *InterferenceTracker) AddForeignSignal(duration time.Duration, rxPowerW map[model.Band]float64) {
	if len(rxPowerW) == 0 {
		panic("core: foreign signal added with empty per-band power map")
	}
	ev := newEvent(nil, model.TxVector{}, t.clock.Now(), duration, rxPowerW)
	t.appendEvent(ev)
}

// appendEvent inserts the +power/-power change points of the event into
// every band it occupies. When the receiver is idle, entries before the
// event start are folded into the band baseline and pruned.
func (t *InterferenceTracker) appendEvent(ev *Event) {
	for band, power := range ev.rxPowerW {
		t.ensureBand(band)
		ledger := t.changes[band]

		startPower := t.aggregateAt(band, ev.start)
		endPower := t.aggregateAt(band, ev.end)

		if !t.rxing {
			t.firstPowers[band] = startPower
			keep := firstIndexAfter(ledger, ev.start)
			ledger = append([]niChange(nil), ledger[keep:]...)
		}

		ledger = insertChange(ledger, niChange{at: ev.start, power: startPower, event: ev})
		ledger = insertChange(ledger, niChange{at: ev.end, power: endPower, event: ev})

		// Raise the aggregate for every change point covered by the
		// event, including the start entry and excluding the end entry.
		for i := range ledger {
			if !ledger[i].at.Before(ev.start) && ledger[i].at.Before(ev.end) {
				ledger[i].power += power
			}
		}
		t.changes[band] = ledger
	}
}

// insertChange places c after any existing entries with the same
// timestamp, preserving insertion order for ties.
func insertChange(ledger []niChange, c niChange) []niChange {
	i := sort.Search(len(ledger), func(i int) bool {
		return ledger[i].at.After(c.at)
	})
	ledger = append(ledger, niChange{})
	copy(ledger[i+1:], ledger[i:])
	ledger[i] = c
	return ledger
}

// firstIndexAfter returns the index of the first change strictly after m.
func firstIndexAfter(ledger []niChange, m time.Time) int {
	return sort.Search(len(ledger), func(i int) bool {
		return ledger[i].at.After(m)
	})
}

// aggregateAt returns the total power present in the band at time m:
// the baseline plus the last change at or before m.
func (t *InterferenceTracker) aggregateAt(band model.Band, m time.Time) float64 {
	ledger, ok := t.changes[band]
	if !ok {
		panic(fmt.Sprintf("core: power query for untracked band %v", band))
	}
	i := firstIndexAfter(ledger, m)
	if i == 0 {
		return t.firstPowers[band]
	}
	return ledger[i-1].power
}

// powerSegment is a maximal sub-interval of a query window over which the
// aggregate interference is constant.
type powerSegment struct {
	start, end time.Time
	niW        float64 // noise+interference excluding the queried event
}

// interferenceSegments decomposes [winStart, winEnd] at the ledger's
// change points, reporting for each segment the interference power with
// the event's own contribution removed.
func (t *InterferenceTracker) interferenceSegments(ev *Event, band model.Band, winStart, winEnd time.Time) []powerSegment {
	own := ev.RxPowerW(band)
	ledger, ok := t.changes[band]
	if !ok {
		panic(fmt.Sprintf("core: interference query for untracked band %v", band))
	}

	var segs []powerSegment
	cur := winStart
	curPower := t.aggregateAt(band, winStart)
	for i := firstIndexAfter(ledger, winStart); i < len(ledger); i++ {
		c := ledger[i]
		if !c.at.Before(winEnd) {
			break
		}
		if c.at.After(cur) {
			segs = append(segs, powerSegment{start: cur, end: c.at, niW: curPower - own})
			cur = c.at
		}
		curPower = c.power
	}
	if cur.Before(winEnd) {
		segs = append(segs, powerSegment{start: cur, end: winEnd, niW: curPower - own})
	}
	for i := range segs {
		if segs[i].niW < 0 {
			segs[i].niW = 0 // floating residue from additions/removals
		}
	}
	return segs
}

// noiseFloorW returns the thermal noise floor for a band of the given
// width, scaled by the receiver noise figure.
func (t *InterferenceTracker) noiseFloorW(widthMHz uint16) float64 {
	return t.noiseFigure * boltzmann * thermalNoiseTempK * float64(widthMHz) * 1e6
}

// snr converts signal and interference power into a linear SINR,
// including the RX diversity gain when the receiver has more antennas
// than the transmission has spatial streams.
func (t *InterferenceTracker) snr(signalW, niW float64, widthMHz uint16, nss uint8) float64 {
	if nss == 0 {
		nss = 1
	}
	noise := t.noiseFloorW(widthMHz) + niW
	snr := signalW / noise
	if t.numRxAntennas > nss {
		gain := float64(t.numRxAntennas) / float64(nss)
		if gain > 2 {
			gain = 2
		}
		snr *= gain
	}
	return snr
}

// chunkSuccessRate asks the error-rate model for the success probability
// of the bits sent during duration at the given SINR.
func (t *InterferenceTracker) chunkSuccessRate(snr float64, duration time.Duration, mode model.Mode, widthMHz uint16, gi time.Duration, nss uint8) float64 {
	if duration <= 0 {
		return 1
	}
	nbits := uint64(duration.Seconds() * mode.DataRateBps(widthMHz, gi, nss))
	if nbits == 0 {
		nbits = 1
	}
	return t.errorRateModel.ChunkSuccessRate(mode, snr, nbits)
}

// calculatePer walks the ledger within the window, evaluates each
// constant-interference chunk independently, and combines the chunk
// success probabilities multiplicatively. Returns 1 - product(success).
func (t *InterferenceTracker) calculatePer(ev *Event, band model.Band, winStart, winEnd time.Time, mode model.Mode, nss uint8) float64 {
	if winEnd.Before(winStart) {
		panic("core: error-rate window ends before it starts")
	}
	signalW := ev.RxPowerW(band)
	gi := ev.txVector.GuardInterval
	psr := 1.0
	for _, seg := range t.interferenceSegments(ev, band, winStart, winEnd) {
		snr := t.snr(signalW, seg.niW, band.WidthMHz, nss)
		psr *= t.chunkSuccessRate(snr, seg.end.Sub(seg.start), mode, band.WidthMHz, gi, nss)
	}
	return 1 - psr
}

// NoiseAndInterferencePower returns the worst-case noise+interference
// power (excluding the event's own signal) observed in the band over the
// window, including the thermal noise floor.
func (t *InterferenceTracker) NoiseAndInterferencePower(ev *Event, band model.Band, winStart, winEnd time.Time) float64 {
	worst := 0.0
	for _, seg := range t.interferenceSegments(ev, band, winStart, winEnd) {
		if seg.niW > worst {
			worst = seg.niW
		}
	}
	return worst + t.noiseFloorW(band.WidthMHz)
}

// Snr returns the instantaneous SINR of the event in the band at the
// current simulation time, for the given spatial-stream count.
func (t *InterferenceTracker) Snr(ev *Event, band model.Band, nss uint8) float64 {
	now := t.clock.Now()
	niW := t.aggregateAt(band, now) - ev.RxPowerW(band)
	if niW < 0 {
		niW = 0
	}
	return t.snr(ev.RxPowerW(band), niW, band.WidthMHz, nss)
}

// PayloadSnrPer evaluates the payload of the event over the absolute
// window [winStart, winEnd] in the given band, using the payload mode
// negotiated for the station. This is the per-MPDU entry point: the
// receiver calls it once per sub-unit window of an aggregate.
func (t *InterferenceTracker) PayloadSnrPer(ev *Event, band model.Band, staID uint16, winStart, winEnd time.Time) SnrPer {
	mode := ev.txVector.ModeForSta(staID)
	nss := ev.txVector.NssForSta(staID)
	return SnrPer{
		Snr: t.windowSnr(ev, band, winStart, nss),
		Per: t.calculatePer(ev, band, winStart, winEnd, mode, nss),
	}
}

// LegacyHeaderSnrPer evaluates the legacy (L-SIG) header over its window.
// The legacy header is always sent at the 6 Mbit/s base rate on a single
// stream, regardless of the payload mode.
func (t *InterferenceTracker) LegacyHeaderSnrPer(ev *Event, band model.Band, winStart, winEnd time.Time) SnrPer {
	return SnrPer{
		Snr: t.windowSnr(ev, band, winStart, 1),
		Per: t.calculatePer(ev, band, winStart, winEnd, model.OfdmRate6Mbps(), 1),
	}
}

// NonLegacyHeaderSnrPer evaluates the HT/VHT/HE SIG fields over their
// window. SIG fields are BPSK rate-1/2 like the legacy header but occupy
// the non-legacy part of the preamble.
func (t *InterferenceTracker) NonLegacyHeaderSnrPer(ev *Event, band model.Band, winStart, winEnd time.Time) SnrPer {
	return SnrPer{
		Snr: t.windowSnr(ev, band, winStart, 1),
		Per: t.calculatePer(ev, band, winStart, winEnd, model.OfdmRate6Mbps(), 1),
	}
}

// windowSnr is the SINR at the start of a window, the figure reported
// alongside PERs.
func (t *InterferenceTracker) windowSnr(ev *Event, band model.Band, at time.Time, nss uint8) float64 {
	niW := t.aggregateAt(band, at) - ev.RxPowerW(band)
	if niW < 0 {
		niW = 0
	}
	return t.snr(ev.RxPowerW(band), niW, band.WidthMHz, nss)
}

// EnergyDuration predicts how long, from now, the aggregate power in the
// band stays at or above the threshold. Zero when it is already below.
func (t *InterferenceTracker) EnergyDuration(thresholdW float64, band model.Band) time.Duration {
	t.ensureBand(band)
	now := t.clock.Now()
	if t.aggregateAt(band, now) < thresholdW {
		return 0
	}
	end := now
	ledger := t.changes[band]
	for i := firstIndexAfter(ledger, now); i < len(ledger); i++ {
		end = ledger[i].at
		if ledger[i].power < thresholdW {
			break
		}
	}
	if end.Before(now) {
		return 0
	}
	return end.Sub(now)
}

// NotifyRxStart tells the tracker a reception is in progress; ledger
// entries must be retained for outstanding queries until it ends.
func (t *InterferenceTracker) NotifyRxStart() { t.rxing = true }

// NotifyRxEnd tells the tracker the reception finished; past entries may
// again be folded into band baselines.
func (t *InterferenceTracker) NotifyRxEnd() { t.rxing = false }

// Erase drops all ledger entries and resets band baselines, e.g. on PHY
// reset when entering sleep or off. Calling it on an empty tracker is a
// no-op.
func (t *InterferenceTracker) Erase() {
	for band := range t.changes {
		t.changes[band] = nil
		t.firstPowers[band] = 0
	}
	t.rxing = false
	t.log.Debug(context.Background(), "interference ledger erased")
}
