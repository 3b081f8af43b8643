package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/wlan-simulator/internal/logging"
	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// SimpleChannel connects receivers through a flat path-loss model with a
// fixed propagation delay. It exists for demos and integration tests;
// anything beyond a constant loss matrix belongs in a dedicated
// propagation package.
type SimpleChannel struct {
	sched *timectrl.Scheduler
	log   logging.Logger

	defaultPathLossDb float64
	pathLossDb        map[[2]int]float64
	delay             time.Duration

	receivers []*Receiver
}

// NewSimpleChannel builds a channel with the given default path loss
// applied between every pair of attached receivers.
func NewSimpleChannel(sched *timectrl.Scheduler, defaultPathLossDb float64, delay time.Duration, log logging.Logger) *SimpleChannel {
	if log == nil {
		log = logging.Noop()
	}
	return &SimpleChannel{
		sched:             sched,
		log:               log,
		defaultPathLossDb: defaultPathLossDb,
		pathLossDb:        make(map[[2]int]float64),
		delay:             delay,
	}
}

// Attach adds a receiver to the channel and wires its transmit callback.
// The returned index identifies the receiver in SetPathLoss.
func (c *SimpleChannel) Attach(r *Receiver) int {
	idx := len(c.receivers)
	c.receivers = append(c.receivers, r)
	r.SetTransmitCallback(func(ppdu *model.Ppdu, txPowerDbm float64) {
		c.broadcast(idx, ppdu, txPowerDbm)
	})
	return idx
}

// SetPathLoss overrides the loss between a specific pair, both
// directions.
func (c *SimpleChannel) SetPathLoss(a, b int, lossDb float64) {
	c.pathLossDb[[2]int{a, b}] = lossDb
	c.pathLossDb[[2]int{b, a}] = lossDb
}

func (c *SimpleChannel) lossBetween(a, b int) float64 {
	if l, ok := c.pathLossDb[[2]int{a, b}]; ok {
		return l
	}
	return c.defaultPathLossDb
}

func (c *SimpleChannel) broadcast(from int, ppdu *model.Ppdu, txPowerDbm float64) {
	txBand := model.Band{
		CenterMHz: c.receivers[from].Config().CenterFrequencyMHz,
		WidthMHz:  ppdu.TxVector.ChannelWidth,
	}
	for i, rx := range c.receivers {
		if i == from {
			continue
		}
		rxDbm := txPowerDbm - c.lossBetween(from, i)
		powers := perBandPowers(rx.Config(), txBand, model.DbmToW(rxDbm))
		if len(powers) == 0 {
			continue
		}
		rx := rx
		c.sched.ScheduleAfter(c.delay, func() {
			rx.DeliverSignal(ppdu, powers)
		})
		c.log.Debug(context.Background(), "signal delivered",
			logging.Uint64("ppdu_uid", ppdu.UID),
			logging.Int("from", from),
			logging.Int("to", i),
			logging.Float64("rx_power_dbm", rxDbm),
		)
	}
}

// InjectForeign delivers a non-Wi-Fi signal of the given band and power
// to every receiver.
func (c *SimpleChannel) InjectForeign(band model.Band, powerDbm float64, duration time.Duration) {
	powerW := model.DbmToW(powerDbm)
	for _, rx := range c.receivers {
		powers := perBandPowers(rx.Config(), band, powerW)
		if len(powers) == 0 {
			continue
		}
		rx.DeliverForeignSignal(duration, powers)
	}
}

// perBandPowers projects a signal of totalW watts, spread uniformly over
// txBand, onto every sub-band a receiver with the given configuration
// tracks. Composite bands accumulate their sub-band overlaps through the
// same proportional split.
func perBandPowers(cfg Config, txBand model.Band, totalW float64) map[model.Band]float64 {
	powers := make(map[model.Band]float64)
	for _, w := range cfg.sortedSupportedWidths() {
		if w > cfg.ChannelWidthMHz {
			continue
		}
		for _, b := range model.SubBands(cfg.CenterFrequencyMHz, cfg.ChannelWidthMHz, w) {
			overlap := overlapMHz(txBand, b)
			powers[b] = totalW * float64(overlap) / float64(txBand.WidthMHz)
		}
	}
	return powers
}

func overlapMHz(a, b model.Band) uint16 {
	lo := a.LowEdgeMHz()
	if b.LowEdgeMHz() > lo {
		lo = b.LowEdgeMHz()
	}
	hi := a.HighEdgeMHz()
	if b.HighEdgeMHz() < hi {
		hi = b.HighEdgeMHz()
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}
