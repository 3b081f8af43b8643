package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// rxRecorder captures the MAC-facing callbacks of one receiver.
type rxRecorder struct {
	okPsdus  []*model.Psdu
	okInfos  []model.RxSignalInfo
	okMpdus  [][]bool
	errPsdus []*model.Psdu
	errors   []model.FailureReason
	drops    []model.FailureReason
}

func (r *rxRecorder) attach(rx *Receiver) {
	rx.SetReceiveOkCallback(func(psdu *model.Psdu, info model.RxSignalInfo, txVector model.TxVector, perMpdu []bool) {
		r.okPsdus = append(r.okPsdus, psdu)
		r.okInfos = append(r.okInfos, info)
		r.okMpdus = append(r.okMpdus, perMpdu)
	})
	rx.SetReceiveErrorCallback(func(psdu *model.Psdu, snr float64, reason model.FailureReason) {
		r.errPsdus = append(r.errPsdus, psdu)
		r.errors = append(r.errors, reason)
	})
	rx.SetDropCallback(func(psdu *model.Psdu, reason model.FailureReason) {
		r.drops = append(r.drops, reason)
	})
}

// newTestReceiver builds a 20 MHz receiver with a deterministic
// threshold error model so reception outcomes are reproducible.
func newTestReceiver(t *testing.T, sched *timectrl.Scheduler, thresholdDb float64) *Receiver {
	t.Helper()
	rx, err := NewReceiver(sched, DefaultConfig(), &model.UidSource{}, nil)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	rx.SetErrorRateModel(&ThresholdErrorRateModel{ThresholdDb: thresholdDb})
	return rx
}

func buildHePpdu(uid uint64, psdu *model.Psdu) *model.Ppdu {
	txv := heTxVector(20)
	return model.NewPpdu(uid, psdu, txv, CalculateTxDuration(psdu.SizeBytes(), txv))
}

// deliver projects a PPDU onto the receiver's bands at the given
// received power and hands it to the PHY.
func deliver(rx *Receiver, ppdu *model.Ppdu, powerDbm float64) {
	txBand := model.Band{
		CenterMHz: rx.Config().CenterFrequencyMHz,
		WidthMHz:  ppdu.TxVector.ChannelWidth,
	}
	rx.DeliverSignal(ppdu, perBandPowers(rx.Config(), txBand, model.DbmToW(powerDbm)))
}

func foreignOnPrimary(rx *Receiver, powerDbm float64, duration time.Duration) {
	txBand := rx.PrimaryBand()
	rx.DeliverForeignSignal(duration, perBandPowers(rx.Config(), txBand, model.DbmToW(powerDbm)))
}

// TestReceptionSucceedsEndToEnd verifies a clean strong frame traverses
// preamble detection, both header checks and the payload, and is
// delivered exactly once with its signal info.
func TestReceptionSucceedsEndToEnd(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	var sniffed []model.SignalNoise
	rx.SetMonitorSniffRxCallback(func(_ *model.Psdu, sn model.SignalNoise, _ model.MpduInfo, _ model.TxVector) {
		sniffed = append(sniffed, sn)
	})

	psdu := model.NewPsdu(1500)
	deliver(rx, buildHePpdu(1, psdu), -60)
	sched.Run()

	if len(rec.okPsdus) != 1 {
		t.Fatalf("got %d successful receptions, want 1 (errors: %v)", len(rec.okPsdus), rec.errors)
	}
	if rec.okPsdus[0] != psdu {
		t.Errorf("delivered PSDU is not the transmitted one")
	}
	if got := rec.okMpdus[0]; len(got) != 1 || !got[0] {
		t.Errorf("per-MPDU status = %v, want [true]", got)
	}
	// -60 dBm over a -94 dBm noise floor.
	if snrDb := model.RatioToDb(rec.okInfos[0].Snr); snrDb < 33 || snrDb > 35 {
		t.Errorf("reported SNR = %.1f dB, want about 34 dB", snrDb)
	}
	if got := rx.State(); got != StateIdle {
		t.Errorf("state after reception = %v, want IDLE", got)
	}
	if !rx.LastRxSuccessful() {
		t.Errorf("LastRxSuccessful = false after a successful reception")
	}
	if len(sniffed) != 1 {
		t.Fatalf("sniffer saw %d frames, want 1", len(sniffed))
	}
	if sniffed[0].SignalDbm > -59 || sniffed[0].SignalDbm < -61 {
		t.Errorf("sniffed signal = %.1f dBm, want about -60", sniffed[0].SignalDbm)
	}
}

// TestSignalBelowSensitivityIsNotReceived verifies a signal under the RX
// sensitivity never reaches the MAC in either direction.
func TestSignalBelowSensitivityIsNotReceived(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	deliver(rx, buildHePpdu(1, model.NewPsdu(100)), -105)
	sched.Run()

	if len(rec.okPsdus) != 0 || len(rec.errors) != 0 {
		t.Fatalf("below-sensitivity signal produced callbacks: ok=%d err=%v", len(rec.okPsdus), rec.errors)
	}
	if len(rec.drops) != 1 || rec.drops[0] != model.FailurePreambleDetect {
		t.Fatalf("drops = %v, want one PREAMBLE_DETECT_FAILURE", rec.drops)
	}
}

// TestWiderPpduIsDroppedAsUnsupported verifies a 40 MHz frame arriving
// at a 20 MHz receiver is never decoded but still raises CCA energy.
func TestWiderPpduIsDroppedAsUnsupported(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	psdu := model.NewPsdu(1500)
	txv := heTxVector(40)
	ppdu := model.NewPpdu(1, psdu, txv, CalculateTxDuration(psdu.SizeBytes(), txv))
	deliver(rx, ppdu, -50)
	if got := rx.State(); got != StateCcaBusy {
		t.Fatalf("state during unsupported frame = %v, want CCA_BUSY", got)
	}
	sched.Run()

	if len(rec.drops) != 1 || rec.drops[0] != model.FailureUnsupportedSettings {
		t.Fatalf("drops = %v, want one UNSUPPORTED_SETTINGS", rec.drops)
	}
	if len(rec.okPsdus) != 0 || len(rec.errors) != 0 {
		t.Fatalf("unsupported-width frame produced callbacks: ok=%d err=%v", len(rec.okPsdus), rec.errors)
	}
}

// TestFailedDetectionStillHoldsCcaBusy verifies a signal buried under
// interference fails preamble detection silently but keeps the primary
// channel CCA busy while its energy persists.
func TestFailedDetectionStillHoldsCcaBusy(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	// -55 dBm of foreign energy swamps a -61 dBm frame: SNR about -6 dB.
	foreignOnPrimary(rx, -55, 500*time.Microsecond)
	deliver(rx, buildHePpdu(1, model.NewPsdu(1500)), -61)

	sched.RunUntil(testEpoch.Add(20 * time.Microsecond))
	if got := rx.State(); got != StateCcaBusy {
		t.Fatalf("state after failed detection = %v, want CCA_BUSY", got)
	}
	sched.Run()
	if len(rec.okPsdus) != 0 {
		t.Fatalf("swamped frame was received")
	}
	if len(rec.errors) != 0 {
		t.Fatalf("detection failure must not surface as a reception error, got %v", rec.errors)
	}
}

// TestHeaderFailureAbortsEarly verifies an L-SIG decode failure ends the
// reception with PHY_HEADER_FAILURE well before the frame's end.
func TestHeaderFailureAbortsEarly(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	// Threshold above the achievable SNR: detection passes (needs only
	// 4 dB) but every decode fails.
	rx := newTestReceiver(t, sched, 40)
	rec := &rxRecorder{}
	rec.attach(rx)

	deliver(rx, buildHePpdu(1, model.NewPsdu(1500)), -60)
	sched.Run()

	if len(rec.errors) != 1 || rec.errors[0] != model.FailureLSig {
		t.Fatalf("errors = %v, want one L_SIG_FAILURE", rec.errors)
	}
	if len(rec.okPsdus) != 0 {
		t.Fatalf("frame with failed header was received")
	}
	if rx.LastRxSuccessful() {
		t.Errorf("LastRxSuccessful = true after a failed header")
	}
}

// TestSigFieldFailureReportsSigA verifies interference that arrives
// after L-SIG but inside the HE SIG window produces SIG_A_FAILURE.
func TestSigFieldFailureReportsSigA(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rx.SetFrameCaptureModel(nil)
	rec := &rxRecorder{}
	rec.attach(rx)

	deliver(rx, buildHePpdu(1, model.NewPsdu(1500)), -60)
	// L-SIG spans [16us, 20us]; the HE SIG window spans [20us, 32us].
	sched.Schedule(testEpoch.Add(22*time.Microsecond), func() {
		foreignOnPrimary(rx, -55, 20*time.Microsecond)
	})
	sched.Run()

	if len(rec.errors) != 1 || rec.errors[0] != model.FailureSigA {
		t.Fatalf("errors = %v, want one SIG_A_FAILURE", rec.errors)
	}
}

// TestFrameCaptureSwitchesBeforeHeader verifies a sufficiently stronger
// frame arriving inside the capture window steals the receiver: the
// first reception aborts with FRAME_CAPTURE_PACKET_SWITCH and the second
// completes.
func TestFrameCaptureSwitchesBeforeHeader(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 5)
	rec := &rxRecorder{}
	rec.attach(rx)

	first := model.NewPsdu(1500)
	second := model.NewPsdu(800)
	deliver(rx, buildHePpdu(1, first), -70)
	sched.Schedule(testEpoch.Add(10*time.Microsecond), func() {
		deliver(rx, buildHePpdu(2, second), -60)
	})
	sched.Run()

	if len(rec.errors) != 1 || rec.errors[0] != model.FailureFrameCapturePacketSwitch {
		t.Fatalf("errors = %v, want one FRAME_CAPTURE_PACKET_SWITCH", rec.errors)
	}
	if len(rec.okPsdus) != 1 || rec.okPsdus[0] != second {
		t.Fatalf("captured frame was not received (ok=%d)", len(rec.okPsdus))
	}
}

// TestReceptionImmuneToCaptureAfterHeader verifies a stronger late
// arrival cannot steal an ongoing reception once its header completed;
// at worst it corrupts the payload.
func TestReceptionImmuneToCaptureAfterHeader(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 5)
	rec := &rxRecorder{}
	rec.attach(rx)

	first := model.NewPsdu(1500)
	deliver(rx, buildHePpdu(1, first), -70)
	// The HE header completes 40us in; deliver the contender well after.
	sched.Schedule(testEpoch.Add(100*time.Microsecond), func() {
		deliver(rx, buildHePpdu(2, model.NewPsdu(800)), -60)
	})
	sched.Run()

	for _, reason := range rec.errors {
		if reason == model.FailureFrameCapturePacketSwitch {
			t.Fatalf("post-header capture switch happened: %v", rec.errors)
		}
	}
	// The first frame's payload is corrupted by the overlap instead.
	if len(rec.errors) != 1 || rec.errors[0] != model.FailureErroneousFrame {
		t.Fatalf("errors = %v, want one ERRONEOUS_FRAME for the first PSDU", rec.errors)
	}
	if rec.errPsdus[0] != first {
		t.Fatalf("error reported for the wrong PSDU")
	}
}

// TestAggregatePerMpduOutcomes verifies an A-MPDU yields one status per
// sub-unit: interference over the final third corrupts only the last
// MPDU and the reception still counts as a success.
func TestAggregatePerMpduOutcomes(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	psdu := model.NewAggregatePsdu(1000, 1000, 1000)
	ppdu := buildHePpdu(1, psdu)
	deliver(rx, ppdu, -60)

	payloadStart := testEpoch.Add(PreambleAndHeaderDuration(ppdu.TxVector))
	payloadSpan := ppdu.Duration - PreambleAndHeaderDuration(ppdu.TxVector)
	thirdStart := payloadStart.Add(2 * payloadSpan / 3)
	sched.Schedule(thirdStart.Add(time.Microsecond), func() {
		foreignOnPrimary(rx, -55, payloadSpan)
	})
	sched.Run()

	if len(rec.okMpdus) != 1 {
		t.Fatalf("got %d receptions, want 1 (errors: %v)", len(rec.okMpdus), rec.errors)
	}
	want := []bool{true, true, false}
	got := rec.okMpdus[0]
	if len(got) != len(want) {
		t.Fatalf("per-MPDU statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("per-MPDU statuses = %v, want %v", got, want)
		}
	}
}

// TestMuPpduOnlyDeliversAddressedPsdu verifies a DL MU PPDU delivers the
// PSDU for this station's ID and nothing when the station is not
// addressed.
func TestMuPpduOnlyDeliversAddressedPsdu(t *testing.T) {
	buildMu := func(mine *model.Psdu) *model.Ppdu {
		txv := model.TxVector{
			Mode:          model.HeMcs(3),
			Preamble:      model.PreambleHeMu,
			ChannelWidth:  20,
			GuardInterval: 800 * time.Nanosecond,
			Users: map[uint16]model.UserInfo{
				1: {Mode: model.HeMcs(3), Nss: 1},
				7: {Mode: model.HeMcs(1), Nss: 1},
			},
		}
		psdus := map[uint16]*model.Psdu{1: mine, 7: model.NewPsdu(400)}
		return model.NewMuPpdu(9, psdus, txv, 500*time.Microsecond)
	}

	// Station 1 is addressed.
	sched := timectrl.NewScheduler(testEpoch)
	cfg := DefaultConfig()
	cfg.StaID = 1
	rx, err := NewReceiver(sched, cfg, &model.UidSource{}, nil)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	rx.SetErrorRateModel(&ThresholdErrorRateModel{ThresholdDb: 10})
	rec := &rxRecorder{}
	rec.attach(rx)
	mine := model.NewPsdu(1200)
	deliver(rx, buildMu(mine), -60)
	sched.Run()
	if len(rec.okPsdus) != 1 || rec.okPsdus[0] != mine {
		t.Fatalf("addressed station: ok=%d errors=%v, want its own PSDU", len(rec.okPsdus), rec.errors)
	}

	// Station 2 is not addressed: the frame occupies the medium but
	// produces no MAC callback.
	sched2 := timectrl.NewScheduler(testEpoch)
	cfg2 := DefaultConfig()
	cfg2.StaID = 2
	rx2, err := NewReceiver(sched2, cfg2, &model.UidSource{}, nil)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	rx2.SetErrorRateModel(&ThresholdErrorRateModel{ThresholdDb: 10})
	rec2 := &rxRecorder{}
	rec2.attach(rx2)
	deliver(rx2, buildMu(model.NewPsdu(1200)), -60)
	sched2.RunUntil(testEpoch.Add(100 * time.Microsecond))
	if got := rx2.State(); got != StateRx {
		t.Fatalf("unaddressed station state mid-frame = %v, want RX", got)
	}
	sched2.Run()
	if len(rec2.okPsdus) != 0 || len(rec2.errors) != 0 {
		t.Fatalf("unaddressed station got callbacks: ok=%d err=%v", len(rec2.okPsdus), rec2.errors)
	}
	if got := rx2.State(); got != StateIdle {
		t.Fatalf("unaddressed station state after frame = %v, want IDLE", got)
	}
}

func buildHeTbPpdu(uid uint64, psdu *model.Psdu) *model.Ppdu {
	txv := model.TxVector{
		Mode:          model.HeMcs(0),
		Preamble:      model.PreambleHeTb,
		ChannelWidth:  20,
		GuardInterval: 800 * time.Nanosecond,
		Nss:           1,
	}
	return model.NewPpdu(uid, psdu, txv, CalculateTxDuration(psdu.SizeBytes(), txv))
}

// TestOfdmaPayloadSurvivesUnrelatedAbort verifies an uplink MU payload
// scheduled through the OFDMA entry path still delivers its outcome when
// an abort of a different (here: absent) reception fires in between.
func TestOfdmaPayloadSurvivesUnrelatedAbort(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	psdu := model.NewPsdu(800)
	ppdu := buildHeTbPpdu(3, psdu)
	txBand := model.Band{CenterMHz: rx.Config().CenterFrequencyMHz, WidthMHz: 20}
	rx.StartReceiveOfdmaPayload(ppdu, rx.Config().StaID, perBandPowers(rx.Config(), txBand, model.DbmToW(-60)))

	rx.AbortCurrentReception(model.FailureUnknown)
	sched.Run()

	if len(rec.okPsdus) != 1 || rec.okPsdus[0] != psdu {
		t.Fatalf("UL MU payload outcome was never delivered after an unrelated abort: ok=%d err=%v",
			len(rec.okPsdus), rec.errors)
	}
}

// TestUlMuResponsesShareOneReception verifies a second trigger-based
// signal with the PPDU UID already in flight joins the ongoing reception
// instead of being dropped or contending for the preamble.
func TestUlMuResponsesShareOneReception(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	psdu := model.NewPsdu(800)
	deliver(rx, buildHeTbPpdu(5, psdu), -60)
	// A weaker response from another station on the same trigger. At
	// -90 dBm it sits above sensitivity, so without the UID join it
	// would be dropped as a failed preamble.
	deliver(rx, buildHeTbPpdu(5, model.NewPsdu(800)), -90)
	sched.Run()

	if len(rec.drops) != 0 {
		t.Fatalf("same-UID response was dropped: %v", rec.drops)
	}
	if len(rec.okPsdus) != 1 || rec.okPsdus[0] != psdu {
		t.Fatalf("joined reception outcome: ok=%d err=%v, want the first PSDU", len(rec.okPsdus), rec.errors)
	}
}

// TestStrongerPreambleWinsDetectionWindow verifies contention between two
// undetected signals: a sufficiently stronger arrival inside the first
// frame's detection window takes over, and the loser is reported as a
// detection-stage packet switch.
func TestStrongerPreambleWinsDetectionWindow(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	deliver(rx, buildHePpdu(1, model.NewPsdu(1500)), -75)
	winner := model.NewPsdu(1500)
	// 15 dB stronger, 2us into the 4us detection window: capture margin
	// is met and the loser's interference leaves about 15 dB of SINR.
	sched.Schedule(testEpoch.Add(2*time.Microsecond), func() {
		deliver(rx, buildHePpdu(2, winner), -60)
	})
	sched.Run()

	found := false
	for _, reason := range rec.drops {
		if reason == model.FailurePreambleDetectionPacketSwitch {
			found = true
		}
	}
	if !found {
		t.Fatalf("drops = %v, want a PREAMBLE_DETECTION_PACKET_SWITCH", rec.drops)
	}
	if len(rec.okPsdus) != 1 || rec.okPsdus[0] != winner {
		t.Fatalf("ok=%d errors=%v, want only the stronger frame received", len(rec.okPsdus), rec.errors)
	}
}

// TestSleepRefusesReceptions verifies the sleep contract: signals during
// sleep are ignored, the ledger is reset, and reception works again
// after resuming.
func TestSleepRefusesReceptions(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	rx.SetSleepMode()
	if got := rx.State(); got != StateSleep {
		t.Fatalf("state = %v, want SLEEP", got)
	}
	deliver(rx, buildHePpdu(1, model.NewPsdu(500)), -50)
	sched.Run()
	if len(rec.okPsdus) != 0 {
		t.Fatalf("sleeping PHY received a frame")
	}

	// Wake after the ignored signal has ended.
	advance(sched, 2*time.Millisecond)
	rx.ResumeFromSleep()
	deliver(rx, buildHePpdu(2, model.NewPsdu(500)), -50)
	sched.Run()
	if len(rec.okPsdus) != 1 {
		t.Fatalf("resumed PHY did not receive: errors=%v drops=%v", rec.errors, rec.drops)
	}
}

// TestSendOccupiesTxState verifies a transmission switches the PHY to TX
// for the PPDU's duration and hands the frame to the channel callback.
func TestSendOccupiesTxState(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)

	var sent *model.Ppdu
	rx.SetTransmitCallback(func(ppdu *model.Ppdu, txPowerDbm float64) { sent = ppdu })

	txv := heTxVector(20)
	txv.TxPowerDbm = 16
	ppdu, err := rx.Send(model.NewPsdu(1500), txv)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent != ppdu {
		t.Fatalf("transmit callback did not receive the built PPDU")
	}
	if got := rx.State(); got != StateTx {
		t.Fatalf("state during TX = %v, want TX", got)
	}
	if _, err := rx.Send(model.NewPsdu(100), txv); err == nil {
		t.Fatalf("Send while transmitting should fail")
	}
	advance(sched, ppdu.Duration+time.Microsecond)
	if got := rx.State(); got != StateIdle {
		t.Fatalf("state after TX = %v, want IDLE", got)
	}
}

// TestSendRejectsUnsupportedWidth verifies width validation is
// synchronous.
func TestSendRejectsUnsupportedWidth(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)

	txv := heTxVector(80)
	if _, err := rx.Send(model.NewPsdu(100), txv); err == nil {
		t.Fatalf("Send at unsupported 80 MHz should fail")
	}
}

// TestChannelSwitchDropsReceptionAndRetunes verifies an in-flight
// reception aborts on a channel switch, the PHY stays in SWITCHING for
// the configured delay, and the new channel is active afterwards.
func TestChannelSwitchDropsReceptionAndRetunes(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	rx := newTestReceiver(t, sched, 10)
	rec := &rxRecorder{}
	rec.attach(rx)

	deliver(rx, buildHePpdu(1, model.NewPsdu(1500)), -60)
	sched.RunUntil(testEpoch.Add(30 * time.Microsecond))

	if err := rx.SwitchChannel(5240, 20, 5240); err != nil {
		t.Fatalf("SwitchChannel: %v", err)
	}
	if got := rx.State(); got != StateSwitching {
		t.Fatalf("state after switch start = %v, want SWITCHING", got)
	}
	advance(sched, 300*time.Microsecond)

	if len(rec.okPsdus) != 0 {
		t.Fatalf("reception survived a channel switch")
	}
	if got := rx.Config().CenterFrequencyMHz; got != 5240 {
		t.Fatalf("center after switch = %d, want 5240", got)
	}
	if got := rx.State(); got != StateIdle {
		t.Fatalf("state after switch delay = %v, want IDLE", got)
	}
}
