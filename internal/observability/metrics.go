package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PhyCollector bundles Prometheus metrics for the PHY layer and provides
// a ready-to-serve /metrics handler. Label values are plain strings so
// the collector stays decoupled from the PHY types.
type PhyCollector struct {
	gatherer prometheus.Gatherer

	Receptions   *prometheus.CounterVec
	Drops        *prometheus.CounterVec
	Transmits    prometheus.Counter
	RxSnr        prometheus.Histogram
	StateSeconds *prometheus.CounterVec
	CcaBusy      prometheus.Gauge
}

// NewPhyCollector registers the PHY metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPhyCollector(reg prometheus.Registerer) (*PhyCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	receptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_receptions_total",
		Help: "Completed receptions, labeled by outcome (ok or the failure reason).",
	}, []string{"outcome"})
	receptions, err := registerCounterVec(reg, receptions, "phy_receptions_total")
	if err != nil {
		return nil, err
	}

	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_drops_total",
		Help: "Signals dropped before a reception completed, labeled by reason.",
	}, []string{"reason"})
	drops, err = registerCounterVec(reg, drops, "phy_drops_total")
	if err != nil {
		return nil, err
	}

	transmits, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "phy_transmits_total",
		Help: "PPDUs handed to the channel for transmission.",
	}), "phy_transmits_total")
	if err != nil {
		return nil, err
	}

	rxSnr := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "phy_rx_snr_db",
		Help:    "SNR of successfully received PSDUs in dB.",
		Buckets: []float64{-5, 0, 5, 10, 15, 20, 25, 30, 40, 50},
	})
	rxSnr, err = registerHistogram(reg, rxSnr, "phy_rx_snr_db")
	if err != nil {
		return nil, err
	}

	stateSeconds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_state_time_seconds_total",
		Help: "Time spent in each PHY state, accumulated on transitions.",
	}, []string{"state"})
	stateSeconds, err = registerCounterVec(reg, stateSeconds, "phy_state_time_seconds_total")
	if err != nil {
		return nil, err
	}

	ccaBusy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "phy_cca_busy",
		Help: "1 while the primary channel is sensed busy, 0 otherwise.",
	}), "phy_cca_busy")
	if err != nil {
		return nil, err
	}

	return &PhyCollector{
		gatherer:     gatherer,
		Receptions:   receptions,
		Drops:        drops,
		Transmits:    transmits,
		RxSnr:        rxSnr,
		StateSeconds: stateSeconds,
		CcaBusy:      ccaBusy,
	}, nil
}

// RecordReceptionOk records a successful reception with its SNR.
func (c *PhyCollector) RecordReceptionOk(snrDb float64) {
	if c == nil {
		return
	}
	if c.Receptions != nil {
		c.Receptions.WithLabelValues("ok").Inc()
	}
	if c.RxSnr != nil {
		c.RxSnr.Observe(snrDb)
	}
}

// RecordReceptionError records a failed reception by reason.
func (c *PhyCollector) RecordReceptionError(reason string) {
	if c == nil || c.Receptions == nil {
		return
	}
	c.Receptions.WithLabelValues(reason).Inc()
}

// RecordDrop records a signal dropped before reception completed.
func (c *PhyCollector) RecordDrop(reason string) {
	if c == nil || c.Drops == nil {
		return
	}
	c.Drops.WithLabelValues(reason).Inc()
}

// RecordTransmit records one PPDU handed to the channel.
func (c *PhyCollector) RecordTransmit() {
	if c == nil || c.Transmits == nil {
		return
	}
	c.Transmits.Inc()
}

// RecordStateTransition accumulates the time just spent in a state and
// tracks the CCA busy gauge.
func (c *PhyCollector) RecordStateTransition(oldState, newState string, spent time.Duration) {
	if c == nil {
		return
	}
	if c.StateSeconds != nil {
		c.StateSeconds.WithLabelValues(oldState).Add(spent.Seconds())
	}
	if c.CcaBusy != nil {
		if newState == "CCA_BUSY" {
			c.CcaBusy.Set(1)
		} else {
			c.CcaBusy.Set(0)
		}
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PhyCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
