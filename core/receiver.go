package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/signalsfoundry/wlan-simulator/internal/logging"
	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// Timing constants of the reception pipeline.
const (
	// preambleDetectionDuration is how long the receiver correlates
	// against an incoming preamble before deciding it detected one.
	preambleDetectionDuration = 4 * time.Microsecond
	// legacyPreambleDuration covers L-STF and L-LTF.
	legacyPreambleDuration = 16 * time.Microsecond
	// lSigDuration is the legacy signal field.
	lSigDuration = 4 * time.Microsecond
)

// DropFn observes dropped PPDUs (monitor/trace feed, not the MAC error
// path). psdu may be nil for foreign or pre-header drops.
type DropFn func(psdu *model.Psdu, reason model.FailureReason)

// SniffRxFn is the monitor-sniffer feed for successfully received PSDUs.
type SniffRxFn func(psdu *model.Psdu, sn model.SignalNoise, mpdu model.MpduInfo, txVector model.TxVector)

// TransmitFn hands an outgoing PPDU to the attached channel.
type TransmitFn func(ppdu *model.Ppdu, txPowerDbm float64)

// Receiver is the PHY receive state machine of one station: preamble
// detection, header decoding, payload reception with per-MPDU outcomes,
// capture-effect switching, CCA across bonded sub-channels and dynamic
// width selection.
//
// All methods must be called from scheduler callbacks or between
// scheduler runs; the receiver is driven by a single logical thread.
type Receiver struct {
	cfg   Config
	sched *timectrl.Scheduler
	log   logging.Logger

	tracker *InterferenceTracker
	state   *stateTracker

	preambleModel PreambleDetectionModel
	captureModel  FrameCaptureModel
	bondingMgr    ChannelBondingManager
	uids          *model.UidSource
	rng           *rand.Rand

	// currentEvent anchors the reception in progress, once a preamble
	// is accepted. currentPreambleEvents tracks signals whose preamble
	// is still being detected, keyed by PPDU UID so overlapping UL MU
	// arrivals do not clobber each other.
	currentEvent          *Event
	currentPreambleEvents map[uint64]*Event
	preambleTimers        map[uint64]*timectrl.Timer
	currentUlMuUid        uint64

	headerComplete bool
	mpduStatus     []bool
	bestMpduSnr    float64

	headerTimer     *timectrl.Timer
	endRxTimers     []*timectrl.Timer
	endOfMpduTimers []*timectrl.Timer

	// UL MU payload timers are keyed by PPDU UID so an abort of an
	// unrelated frame cannot cancel an OFDMA outcome in flight.
	ofdmaTimers map[uint64][]*timectrl.Timer

	// lastBusyEnd records, per secondary 20 MHz sub-band, when the last
	// observed busy period ends; SecondaryIdleDuration derives from it.
	lastBusyEnd map[model.Band]time.Time

	transmit       TransmitFn
	sniffRx        SniffRxFn
	dropped        DropFn
	sniffRefNumber uint32
}

// NewReceiver builds a PHY from a validated configuration. The scheduler
// provides both the clock and the timer service.
func NewReceiver(sched *timectrl.Scheduler, cfg Config, uids *model.UidSource, log logging.Logger) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	if uids == nil {
		uids = &model.UidSource{}
	}

	tracker := NewInterferenceTracker(sched, NewAnalyticErrorRateModel(), log)
	tracker.SetNoiseFigure(cfg.NoiseFigureDb)
	tracker.SetNumberOfReceiveAntennas(cfg.NumAntennas)

	r := &Receiver{
		cfg:                   cfg,
		sched:                 sched,
		log:                   log,
		tracker:               tracker,
		state:                 newStateTracker(sched, log),
		preambleModel:         NewThresholdPreambleDetectionModel(),
		bondingMgr:            NewConstantThresholdBondingManager(),
		uids:                  uids,
		rng:                   rand.New(rand.NewSource(1)),
		currentPreambleEvents: make(map[uint64]*Event),
		preambleTimers:        make(map[uint64]*timectrl.Timer),
		ofdmaTimers:           make(map[uint64][]*timectrl.Timer),
		lastBusyEnd:           make(map[model.Band]time.Time),
	}
	r.captureModel = NewSimpleFrameCaptureModel(sched)
	r.seedBands()
	return r, nil
}

// seedBands registers with the tracker every sub-band the receiver will
// ever query: the 20 MHz subdivisions plus the wider composites for each
// supported width.
func (r *Receiver) seedBands() {
	var bands []model.Band
	for _, w := range r.cfg.sortedSupportedWidths() {
		if w > r.cfg.ChannelWidthMHz {
			continue
		}
		bands = append(bands, model.SubBands(r.cfg.CenterFrequencyMHz, r.cfg.ChannelWidthMHz, w)...)
	}
	r.tracker.SetBands(bands)
	now := r.sched.Now()
	for _, b := range r.secondary20Bands() {
		r.lastBusyEnd[b] = now
	}
}

// Collaborator wiring. Following the strategy-object pattern, each model
// is swappable per configuration.

func (r *Receiver) SetErrorRateModel(m ErrorRateModel)                 { r.tracker.SetErrorRateModel(m) }
func (r *Receiver) SetPreambleDetectionModel(m PreambleDetectionModel) { r.preambleModel = m }
func (r *Receiver) SetFrameCaptureModel(m FrameCaptureModel)           { r.captureModel = m }
func (r *Receiver) SetChannelBondingManager(m ChannelBondingManager)   { r.bondingMgr = m }

// SetRandSeed reseeds the uniform variate used to draw reception
// outcomes against computed PERs.
func (r *Receiver) SetRandSeed(seed int64) { r.rng = rand.New(rand.NewSource(seed)) }

// Callback surface toward the MAC, trace and energy layers.

func (r *Receiver) SetReceiveOkCallback(fn ReceiveOkFn)       { r.state.receiveOk = fn }
func (r *Receiver) SetReceiveErrorCallback(fn ReceiveErrorFn) { r.state.receiveErr = fn }
func (r *Receiver) SetStateChangeCallback(fn StateChangeFn)   { r.state.stateChange = fn }
func (r *Receiver) SetTransmitCallback(fn TransmitFn)         { r.transmit = fn }
func (r *Receiver) SetMonitorSniffRxCallback(fn SniffRxFn)    { r.sniffRx = fn }
func (r *Receiver) SetDropCallback(fn DropFn)                 { r.dropped = fn }

// RegisterListener attaches a PHY activity listener (e.g. an energy
// model).
func (r *Receiver) RegisterListener(l Listener) { r.state.registerListener(l) }

// State returns the PHY state of the primary channel.
func (r *Receiver) State() State { return r.state.State() }

// DelayUntilIdle returns how long until the primary channel is idle.
func (r *Receiver) DelayUntilIdle() time.Duration { return r.state.DelayUntilIdle() }

// LastRxSuccessful reports whether the most recently completed reception
// decoded at least one MPDU.
func (r *Receiver) LastRxSuccessful() bool { return r.state.LastRxSuccessful() }

// Tracker exposes the interference tracker, mainly to tests and to the
// channel helper.
func (r *Receiver) Tracker() *InterferenceTracker { return r.tracker }

// Config returns the receiver's configuration.
func (r *Receiver) Config() Config { return r.cfg }

// PrimaryBand is the primary 20 MHz sub-channel.
func (r *Receiver) PrimaryBand() model.Band {
	return model.Band{CenterMHz: r.cfg.PrimaryCenterMHz, WidthMHz: 20}
}

// bandForWidth returns the sub-band of the operating channel, at the
// given width, that contains the primary channel.
func (r *Receiver) bandForWidth(widthMHz uint16) model.Band {
	return model.ContainingBand(r.cfg.CenterFrequencyMHz, r.cfg.ChannelWidthMHz, r.PrimaryBand(), widthMHz)
}

// payloadBand is the band a signal's payload is evaluated in: the
// primary-containing band at the narrower of the signal's width and the
// operating width.
func (r *Receiver) payloadBand(txWidthMHz uint16) model.Band {
	w := txWidthMHz
	if r.cfg.ChannelWidthMHz < w {
		w = r.cfg.ChannelWidthMHz
	}
	return r.bandForWidth(w)
}

// secondary20Bands lists every 20 MHz sub-band of the operating channel
// except the primary.
func (r *Receiver) secondary20Bands() []model.Band {
	var out []model.Band
	for _, b := range model.SubBands(r.cfg.CenterFrequencyMHz, r.cfg.ChannelWidthMHz, 20) {
		if b != r.PrimaryBand() {
			out = append(out, b)
		}
	}
	return out
}

// secondarySubBands lists the 20 MHz sub-bands that are secondary with
// respect to a bonded channel of the given width.
func (r *Receiver) secondarySubBands(widthMHz uint16) []model.Band {
	bonded := r.bandForWidth(widthMHz)
	var out []model.Band
	for _, b := range model.SubBands(bonded.CenterMHz, bonded.WidthMHz, 20) {
		if b != r.PrimaryBand() {
			out = append(out, b)
		}
	}
	return out
}

// SecondaryIdleDuration returns how long the given secondary 20 MHz
// sub-band has been continuously idle, zero if it is busy now.
func (r *Receiver) SecondaryIdleDuration(band model.Band) time.Duration {
	now := r.sched.Now()
	end, ok := r.lastBusyEnd[band]
	if !ok {
		panic(fmt.Sprintf("core: secondary idle query for unknown band %v", band))
	}
	if end.After(now) {
		return 0
	}
	return now.Sub(end)
}

// SelectTxChannelWidth asks the bonding manager for the width to use on
// the next transmission.
func (r *Receiver) SelectTxChannelWidth() uint16 {
	return r.bondingMgr.UsableChannelWidth(r)
}

// DeliverSignal is the inbound contract from the channel layer: one call
// per receiver per transmitted PPDU, carrying already-attenuated per-band
// powers in watts.
func (r *Receiver) DeliverSignal(ppdu *model.Ppdu, rxPowersW map[model.Band]float64) {
	if r.state.State() == StateOff {
		return // radio front end is not listening
	}

	ev := r.tracker.Add(ppdu, ppdu.TxVector, ppdu.Duration, rxPowersW)
	r.updateChannelOccupancy()

	switch st := r.state.State(); st {
	case StateSleep, StateSwitching, StateTx:
		r.drop(ev, model.FailureNotAllowed)
		return
	case StateRx:
		r.maybeSwitchReception(ev)
		return
	default: // IDLE, CCA_BUSY
	}

	// A UL MU arrival whose UID is already in flight joins the ongoing
	// reception rather than starting a new one.
	if ppdu.IsUlMu() && ppdu.UID == r.currentUlMuUid {
		return
	}

	primary := r.PrimaryBand()
	if model.WToDbm(ev.RxPowerW(primary)) < r.cfg.RxSensitivityDbm {
		r.drop(ev, model.FailurePreambleDetect)
		r.maybeCcaBusy()
		return
	}

	// A PPDU wider than the operating channel cannot be decoded; it still
	// contributes interference and CCA energy.
	if ppdu.TxVector.ChannelWidth > r.cfg.ChannelWidthMHz {
		r.drop(ev, model.FailureUnsupportedSettings)
		r.maybeCcaBusy()
		return
	}

	if len(r.currentPreambleEvents) > 0 {
		// Another preamble is being detected; the stronger one wins.
		existing := r.anyPreambleEvent()
		if r.captureModel != nil && r.captureModel.CaptureNewFrame(existing, ev, primary) {
			r.abandonPreambleDetection(existing, model.FailurePreambleDetectionPacketSwitch)
		} else {
			r.drop(ev, model.FailurePreambleDetect)
			r.maybeCcaBusy()
			return
		}
	}

	r.startPreambleDetection(ev)
}

// DeliverForeignSignal feeds a non-Wi-Fi signal into the interference
// ledger and updates CCA.
func (r *Receiver) DeliverForeignSignal(duration time.Duration, rxPowersW map[model.Band]float64) {
	if r.state.State() == StateOff {
		return
	}
	r.tracker.AddForeignSignal(duration, rxPowersW)
	r.updateChannelOccupancy()
	r.maybeCcaBusy()
}

func (r *Receiver) anyPreambleEvent() *Event {
	for _, ev := range r.currentPreambleEvents {
		return ev
	}
	return nil
}

func (r *Receiver) startPreambleDetection(ev *Event) {
	uid := ev.Ppdu().UID
	r.currentPreambleEvents[uid] = ev
	if ev.Ppdu().IsUlMu() {
		r.currentUlMuUid = uid
	}
	r.preambleTimers[uid] = r.sched.ScheduleAfter(preambleDetectionDuration, func() {
		r.endPreambleDetection(ev)
	})
}

func (r *Receiver) abandonPreambleDetection(ev *Event, reason model.FailureReason) {
	uid := ev.Ppdu().UID
	if t := r.preambleTimers[uid]; t != nil {
		t.Stop()
	}
	delete(r.preambleTimers, uid)
	delete(r.currentPreambleEvents, uid)
	r.drop(ev, reason)
}

// endPreambleDetection decides, 4 us into the signal, whether the
// receiver locked onto the preamble.
func (r *Receiver) endPreambleDetection(ev *Event) {
	uid := ev.Ppdu().UID
	delete(r.preambleTimers, uid)

	primary := r.PrimaryBand()
	snr := r.tracker.Snr(ev, primary, 1)
	if !r.preambleModel.IsDetected(ev.RxPowerW(primary), snr) {
		delete(r.currentPreambleEvents, uid)
		r.drop(ev, model.FailurePreambleDetect)
		r.maybeCcaBusy()
		return
	}

	// Preamble accepted: this signal anchors the reception.
	r.currentEvent = ev
	r.headerComplete = false
	r.mpduStatus = nil
	r.bestMpduSnr = 0
	r.tracker.NotifyRxStart()
	r.state.switchToRx(ev.EndTime().Sub(r.sched.Now()))

	lSigEnd := ev.StartTime().Add(legacyPreambleDuration + lSigDuration)
	r.headerTimer = r.sched.Schedule(lSigEnd, func() { r.endLegacyHeader(ev) })

	r.log.Debug(context.Background(), "preamble detected",
		logging.Uint64("ppdu_uid", uid),
		logging.Float64("snr_db", model.RatioToDb(snr)),
	)
}

// maybeSwitchReception applies the capture rule when a new signal lands
// during an ongoing reception: before header completion a sufficiently
// stronger frame steals the receiver, afterwards the ongoing reception is
// immune.
func (r *Receiver) maybeSwitchReception(ev *Event) {
	cur := r.currentEvent
	if cur == nil {
		r.drop(ev, model.FailurePreambleDetect)
		return
	}
	primary := r.PrimaryBand()
	if !r.headerComplete &&
		r.captureModel != nil &&
		r.captureModel.IsInCaptureWindow(cur.StartTime()) &&
		r.captureModel.CaptureNewFrame(cur, ev, primary) {
		r.AbortCurrentReception(model.FailureFrameCapturePacketSwitch)
		r.startPreambleDetection(ev)
		return
	}
	r.drop(ev, model.FailurePreambleDetect)
}

// endLegacyHeader evaluates the L-SIG field over its fixed-rate window.
func (r *Receiver) endLegacyHeader(ev *Event) {
	primary := r.PrimaryBand()
	start := ev.StartTime().Add(legacyPreambleDuration)
	sp := r.tracker.LegacyHeaderSnrPer(ev, primary, start, start.Add(lSigDuration))
	if r.rng.Float64() < sp.Per {
		r.abortWithDecodeFailure(ev, sp.Snr, model.FailureLSig)
		return
	}
	if ev.TxVector().Preamble == model.PreambleLong {
		// No non-legacy header; payload follows directly.
		r.headerComplete = true
		r.startReceivePayload(ev)
		return
	}
	sigEnd := ev.StartTime().Add(legacyPreambleDuration + lSigDuration + sigFieldDuration(ev.TxVector().Preamble))
	r.headerTimer = r.sched.Schedule(sigEnd, func() { r.endNonLegacyHeader(ev) })
}

// endNonLegacyHeader evaluates the HT/VHT/HE SIG fields.
func (r *Receiver) endNonLegacyHeader(ev *Event) {
	primary := r.PrimaryBand()
	start := ev.StartTime().Add(legacyPreambleDuration + lSigDuration)
	sp := r.tracker.NonLegacyHeaderSnrPer(ev, primary, start, start.Add(sigFieldDuration(ev.TxVector().Preamble)))
	if r.rng.Float64() < sp.Per {
		r.abortWithDecodeFailure(ev, sp.Snr, model.FailureSigA)
		return
	}
	r.headerComplete = true
	r.startReceivePayload(ev)
}

// abortWithDecodeFailure ends the reception after a header decode
// failure: cheap, no payload work wasted.
func (r *Receiver) abortWithDecodeFailure(ev *Event, snr float64, reason model.FailureReason) {
	var psdu *model.Psdu
	if ev.Ppdu() != nil {
		psdu = ev.Ppdu().PsduFor(r.cfg.StaID)
	}
	r.state.notifyReceiveError(psdu, snr, reason)
	r.finishReception(ev)
	r.log.Debug(context.Background(), "header decode failed",
		logging.Uint64("ppdu_uid", ev.Ppdu().UID),
		logging.String("reason", reason.String()),
	)
}

// startReceivePayload schedules the per-MPDU evaluation windows and the
// end-of-reception callback.
func (r *Receiver) startReceivePayload(ev *Event) {
	ppdu := ev.Ppdu()
	psdu := ppdu.PsduFor(r.cfg.StaID)
	if psdu == nil {
		// MU PPDU with nothing addressed to this station: hold RX until
		// the frame ends, then release the medium.
		r.endRxTimers = append(r.endRxTimers, r.sched.Schedule(ev.EndTime(), func() {
			r.finishReception(ev)
		}))
		return
	}

	band := r.payloadBand(ev.TxVector().ChannelWidth)
	payloadStart := ev.StartTime().Add(PreambleAndHeaderDuration(ev.TxVector()))
	payloadEnd := ev.EndTime()

	windows := mpduWindows(psdu, payloadStart, payloadEnd)
	for i, w := range windows {
		i, w := i, w
		r.endOfMpduTimers = append(r.endOfMpduTimers, r.sched.Schedule(w.end, func() {
			r.endOfMpdu(ev, band, i, w.start, w.end)
		}))
	}
	r.endRxTimers = append(r.endRxTimers, r.sched.Schedule(payloadEnd, func() {
		r.endReceive(ev, psdu)
	}))
}

type mpduWindow struct {
	start, end time.Time
}

// mpduWindows splits the payload span between the MPDUs of an aggregate,
// proportional to their sizes.
func mpduWindows(psdu *model.Psdu, start, end time.Time) []mpduWindow {
	total := psdu.SizeBytes()
	span := end.Sub(start)
	if total == 0 || len(psdu.Mpdus) == 1 {
		return []mpduWindow{{start: start, end: end}}
	}
	windows := make([]mpduWindow, 0, len(psdu.Mpdus))
	var done uint32
	cur := start
	for _, m := range psdu.Mpdus {
		done += m.SizeBytes
		boundary := start.Add(time.Duration(float64(span) * float64(done) / float64(total)))
		windows = append(windows, mpduWindow{start: cur, end: boundary})
		cur = boundary
	}
	windows[len(windows)-1].end = end // absorb rounding
	return windows
}

// endOfMpdu evaluates one sub-unit window and records its outcome.
func (r *Receiver) endOfMpdu(ev *Event, band model.Band, index int, start, end time.Time) {
	sp := r.tracker.PayloadSnrPer(ev, band, r.cfg.StaID, start, end)
	ok := r.rng.Float64() >= sp.Per
	r.mpduStatus = append(r.mpduStatus, ok)
	if sp.Snr > r.bestMpduSnr {
		r.bestMpduSnr = sp.Snr
	}
	r.log.Debug(context.Background(), "mpdu evaluated",
		logging.Uint64("ppdu_uid", ev.Ppdu().UID),
		logging.Int("mpdu", index),
		logging.Float64("per", sp.Per),
		logging.Float64("snr_db", model.RatioToDb(sp.Snr)),
		logging.Any("ok", ok),
	)
}

// endReceive delivers the overall reception outcome.
func (r *Receiver) endReceive(ev *Event, psdu *model.Psdu) {
	statuses := append([]bool(nil), r.mpduStatus...)
	snr := r.bestMpduSnr
	rssiDbm := model.WToDbm(ev.RxPowerW(r.payloadBand(ev.TxVector().ChannelWidth)))

	anyOk := false
	for _, ok := range statuses {
		if ok {
			anyOk = true
			break
		}
	}

	if anyOk {
		info := model.RxSignalInfo{Snr: snr, RssiDbm: rssiDbm}
		r.state.notifyReceiveOk(psdu, info, ev.TxVector(), statuses)
		r.state.switchFromRxEndOk()
		if r.sniffRx != nil {
			r.sniffRefNumber++
			noiseDbm := model.WToDbm(r.tracker.noiseFloorW(r.payloadBand(ev.TxVector().ChannelWidth).WidthMHz))
			mpdu := model.MpduInfo{Aggregated: len(statuses) > 1, RefNumber: r.sniffRefNumber}
			r.sniffRx(psdu, model.SignalNoise{SignalDbm: rssiDbm, NoiseDbm: noiseDbm}, mpdu, ev.TxVector())
		}
	} else {
		r.state.notifyReceiveError(psdu, snr, model.FailureErroneousFrame)
		r.state.switchFromRxEndError()
	}

	r.cleanupReception(ev)
	r.maybeCcaBusy()
}

// finishReception releases reception state without a payload outcome
// (header failures and not-addressed MU frames).
func (r *Receiver) finishReception(ev *Event) {
	r.state.switchFromRxAbort()
	r.cleanupReception(ev)
	r.maybeCcaBusy()
}

func (r *Receiver) cleanupReception(ev *Event) {
	if ev.Ppdu() != nil {
		uid := ev.Ppdu().UID
		delete(r.currentPreambleEvents, uid)
		if r.currentUlMuUid == uid {
			r.currentUlMuUid = 0
		}
	}
	if r.currentEvent == ev {
		r.currentEvent = nil
	}
	for _, t := range r.endOfMpduTimers {
		t.Stop()
	}
	r.endOfMpduTimers = nil
	for _, t := range r.endRxTimers {
		t.Stop()
	}
	r.endRxTimers = nil
	r.headerComplete = false
	r.tracker.NotifyRxEnd()
}

// AbortCurrentReception cancels the reception in progress: on capture
// switches, sleep/off transitions and channel switches. Cancelled timers
// never fire and never mutate state.
func (r *Receiver) AbortCurrentReception(reason model.FailureReason) {
	if r.headerTimer != nil {
		r.headerTimer.Stop()
		r.headerTimer = nil
	}
	for _, t := range r.endOfMpduTimers {
		t.Stop()
	}
	r.endOfMpduTimers = nil
	for _, t := range r.endRxTimers {
		t.Stop()
	}
	r.endRxTimers = nil
	for uid, t := range r.preambleTimers {
		t.Stop()
		delete(r.preambleTimers, uid)
		delete(r.currentPreambleEvents, uid)
	}

	ev := r.currentEvent
	if ev == nil {
		return
	}
	var psdu *model.Psdu
	if ev.Ppdu() != nil {
		psdu = ev.Ppdu().PsduFor(r.cfg.StaID)
	}
	snr := r.tracker.Snr(ev, r.PrimaryBand(), 1)
	r.state.notifyReceiveError(psdu, snr, reason)
	r.state.switchFromRxAbort()
	r.cleanupReception(ev)
	r.maybeCcaBusy()
}

// StartReceiveOfdmaPayload is the auxiliary entry path for uplink MU
// PPDUs whose payload begins after the common preamble: each user's
// signal is evaluated independently, keyed by the shared PPDU UID.
func (r *Receiver) StartReceiveOfdmaPayload(ppdu *model.Ppdu, staID uint16, rxPowersW map[model.Band]float64) {
	if r.state.State() == StateOff || r.state.State() == StateSleep {
		return
	}
	remaining := ppdu.Duration - PreambleAndHeaderDuration(ppdu.TxVector)
	ev := r.tracker.Add(ppdu, ppdu.TxVector, remaining, rxPowersW)
	r.updateChannelOccupancy()

	psdu := ppdu.PsduFor(staID)
	if psdu == nil {
		return
	}
	band := r.payloadBand(ppdu.TxVector.ChannelWidth)
	start := ev.StartTime()
	end := ev.EndTime()
	uid := ppdu.UID
	r.ofdmaTimers[uid] = append(r.ofdmaTimers[uid], r.sched.Schedule(end, func() {
		delete(r.ofdmaTimers, uid)
		sp := r.tracker.PayloadSnrPer(ev, band, staID, start, end)
		ok := r.rng.Float64() >= sp.Per
		info := model.RxSignalInfo{Snr: sp.Snr, RssiDbm: model.WToDbm(ev.RxPowerW(band))}
		if ok {
			r.state.notifyReceiveOk(psdu, info, ppdu.TxVector, []bool{true})
		} else {
			r.state.notifyReceiveError(psdu, sp.Snr, model.FailureErroneousFrame)
		}
		r.maybeCcaBusy()
	}))
}

// cancelOfdmaReceptions stops every pending UL MU payload timer; used
// only on mode changes that also erase the interference ledger.
func (r *Receiver) cancelOfdmaReceptions() {
	for uid, timers := range r.ofdmaTimers {
		for _, t := range timers {
			t.Stop()
		}
		delete(r.ofdmaTimers, uid)
	}
}

// drop records a PPDU that will not be received; it still contributes to
// CCA energy through the ledger entry made on arrival.
func (r *Receiver) drop(ev *Event, reason model.FailureReason) {
	var psdu *model.Psdu
	if ev.Ppdu() != nil {
		psdu = ev.Ppdu().PsduFor(r.cfg.StaID)
	}
	if r.dropped != nil {
		r.dropped(psdu, reason)
	}
}

// maybeCcaBusy reports the primary channel busy for as long as the
// ledger predicts energy above the CCA-ED threshold.
func (r *Receiver) maybeCcaBusy() {
	thW := model.DbmToW(r.cfg.CcaEdThresholdDbm)
	dur := r.tracker.EnergyDuration(thW, r.PrimaryBand())
	if dur > 0 {
		r.state.switchMaybeToCcaBusy(dur)
	}
}

// updateChannelOccupancy refreshes the per-secondary-band busy horizon
// used by dynamic bonding, applying the per-width secondary thresholds.
func (r *Receiver) updateChannelOccupancy() {
	now := r.sched.Now()
	for _, w := range r.cfg.sortedSupportedWidths() {
		if w <= 20 || w > r.cfg.ChannelWidthMHz {
			continue
		}
		thW := model.DbmToW(r.cfg.secondaryThreshold(w))
		for _, band := range r.secondarySubBands(w) {
			dur := r.tracker.EnergyDuration(thW, band)
			if dur <= 0 {
				continue
			}
			until := now.Add(dur)
			if until.After(r.lastBusyEnd[band]) {
				r.lastBusyEnd[band] = until
			}
		}
	}
}

// Send hands a PSDU to the PHY for transmission. A zero ChannelWidth in
// the vector asks the bonding manager to pick one; the chosen width is
// embedded in the returned PPDU and never renegotiated. Invalid settings
// are rejected synchronously.
func (r *Receiver) Send(psdu *model.Psdu, txVector model.TxVector) (*model.Ppdu, error) {
	switch st := r.state.State(); st {
	case StateTx, StateSwitching, StateSleep, StateOff:
		return nil, fmt.Errorf("%w: %v", ErrTxRefused, st)
	case StateRx:
		r.AbortCurrentReception(model.FailureUnknown)
	}

	if txVector.ChannelWidth == 0 {
		txVector.ChannelWidth = r.SelectTxChannelWidth()
	}
	supported := false
	for _, w := range r.cfg.SupportedWidthsMHz {
		if w == txVector.ChannelWidth {
			supported = true
			break
		}
	}
	if !supported || txVector.ChannelWidth > r.cfg.ChannelWidthMHz {
		return nil, fmt.Errorf("%w: %d MHz", ErrInvalidWidth, txVector.ChannelWidth)
	}

	duration := CalculateTxDuration(psdu.SizeBytes(), txVector)
	ppdu := model.NewPpdu(r.uids.Next(), psdu, txVector, duration)
	r.state.switchToTx(duration, txVector.TxPowerDbm)
	if r.transmit != nil {
		r.transmit(ppdu, txVector.TxPowerDbm)
	}
	return ppdu, nil
}

// SetSleepMode puts the PHY to sleep: any in-progress reception is
// aborted and the interference ledger erased.
func (r *Receiver) SetSleepMode() {
	if r.state.State() == StateRx || len(r.currentPreambleEvents) > 0 {
		r.AbortCurrentReception(model.FailureUnknown)
	}
	r.cancelOfdmaReceptions()
	r.tracker.Erase()
	r.state.switchToSleep()
}

// ResumeFromSleep wakes the PHY; CCA is re-evaluated from the (empty)
// ledger as new signals arrive.
func (r *Receiver) ResumeFromSleep() {
	r.state.switchFromSleep()
	r.maybeCcaBusy()
}

// SetOffMode turns the radio off entirely.
func (r *Receiver) SetOffMode() {
	if r.state.State() == StateRx || len(r.currentPreambleEvents) > 0 {
		r.AbortCurrentReception(model.FailureUnknown)
	}
	r.cancelOfdmaReceptions()
	r.tracker.Erase()
	r.state.switchToOff()
}

// ResumeFromOff turns the radio back on.
func (r *Receiver) ResumeFromOff() {
	r.state.switchFromOff()
	r.maybeCcaBusy()
}

// SwitchChannel retunes the PHY. The switch is validated synchronously;
// during the switch delay the PHY is in SWITCHING and refuses signals.
func (r *Receiver) SwitchChannel(centerMHz, widthMHz, primaryCenterMHz uint16) error {
	next := r.cfg
	next.CenterFrequencyMHz = centerMHz
	next.ChannelWidthMHz = widthMHz
	next.PrimaryCenterMHz = primaryCenterMHz
	if err := next.Validate(); err != nil {
		return err
	}

	if r.state.State() == StateRx || len(r.currentPreambleEvents) > 0 {
		r.AbortCurrentReception(model.FailureUnknown)
	}
	r.cancelOfdmaReceptions()
	r.tracker.Erase()
	r.state.switchToChannelSwitching(r.cfg.ChannelSwitchDelay)
	r.cfg = next
	r.lastBusyEnd = make(map[model.Band]time.Time)
	r.seedBands()
	return nil
}

// sigFieldDuration is the length of the non-legacy SIG window for each
// preamble format.
func sigFieldDuration(p model.Preamble) time.Duration {
	switch p {
	case model.PreambleHt:
		return 8 * time.Microsecond // HT-SIG1 + HT-SIG2
	case model.PreambleVht:
		return 8 * time.Microsecond // VHT-SIG-A1 + A2
	case model.PreambleHe, model.PreambleHeMu, model.PreambleHeTb:
		return 12 * time.Microsecond // RL-SIG + HE-SIG-A
	default:
		return 0
	}
}

// trainingTailDuration is the non-evaluated training portion between the
// SIG fields and the payload.
func trainingTailDuration(p model.Preamble) time.Duration {
	switch p {
	case model.PreambleHt, model.PreambleVht:
		return 8 * time.Microsecond // STF + LTF
	case model.PreambleHe, model.PreambleHeTb:
		return 8 * time.Microsecond // HE-STF + HE-LTF
	case model.PreambleHeMu:
		return 12 * time.Microsecond // + HE-SIG-B
	default:
		return 0
	}
}

// PreambleAndHeaderDuration returns the time between the start of a PPDU
// and the start of its payload.
func PreambleAndHeaderDuration(txVector model.TxVector) time.Duration {
	return legacyPreambleDuration + lSigDuration +
		sigFieldDuration(txVector.Preamble) + trainingTailDuration(txVector.Preamble)
}

// CalculateTxDuration returns the on-air duration of a PPDU carrying
// sizeBytes of payload, rounded up to a whole number of OFDM symbols.
func CalculateTxDuration(sizeBytes uint32, txVector model.TxVector) time.Duration {
	rate := txVector.Mode.DataRateBps(txVector.ChannelWidth, txVector.GuardInterval, txVector.Nss)
	symbol := symbolDurationFor(txVector)
	payload := time.Duration(float64(sizeBytes*8) / rate * float64(time.Second))
	if symbol > 0 {
		symbols := math.Ceil(float64(payload) / float64(symbol))
		payload = time.Duration(symbols) * symbol
	}
	return PreambleAndHeaderDuration(txVector) + payload
}

func symbolDurationFor(txVector model.TxVector) time.Duration {
	gi := txVector.GuardInterval
	if gi <= 0 {
		gi = 800 * time.Nanosecond
	}
	if txVector.Mode.Class == model.ModulationHe {
		return 12800*time.Nanosecond + gi
	}
	return 3200*time.Nanosecond + gi
}
