package core

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/wlan-simulator/model"
)

// Configuration errors are rejected synchronously at setup or channel
// switch time, never deferred into the event-driven path.
var (
	ErrInvalidChannel   = errors.New("invalid channel configuration")
	ErrInvalidThreshold = errors.New("invalid threshold configuration")
	ErrInvalidWidth     = errors.New("unsupported channel width")
	ErrTxRefused        = errors.New("phy state refuses transmission")
)

// Config is the read-only parameter set of one PHY instance.
type Config struct {
	// CenterFrequencyMHz and ChannelWidthMHz describe the operating
	// channel; PrimaryCenterMHz is the center of the primary 20 MHz
	// sub-channel within it.
	CenterFrequencyMHz uint16 `yaml:"center_frequency_mhz"`
	ChannelWidthMHz    uint16 `yaml:"channel_width_mhz"`
	PrimaryCenterMHz   uint16 `yaml:"primary_center_mhz"`

	// SupportedWidthsMHz lists the channel widths this PHY can operate
	// at; the bonding manager never selects a width outside this set.
	SupportedWidthsMHz []uint16 `yaml:"supported_widths_mhz"`

	NoiseFigureDb    float64 `yaml:"noise_figure_db"`
	RxSensitivityDbm float64 `yaml:"rx_sensitivity_dbm"`

	// CcaEdThresholdDbm applies to the primary channel;
	// CcaEdThresholdSecondaryDbm to secondary sub-channels. Optional
	// per-width overrides refine the secondary threshold for specific
	// bonded widths.
	CcaEdThresholdDbm          float64            `yaml:"cca_ed_threshold_dbm"`
	CcaEdThresholdSecondaryDbm float64            `yaml:"cca_ed_threshold_secondary_dbm"`
	SecondaryThresholdsByWidth map[uint16]float64 `yaml:"secondary_thresholds_by_width,omitempty"`

	NumAntennas uint8         `yaml:"num_antennas"`
	StaID       uint16        `yaml:"sta_id"`
	Pifs        time.Duration `yaml:"pifs"`

	// ChannelSwitchDelay is how long a channel switch keeps the PHY in
	// SWITCHING.
	ChannelSwitchDelay time.Duration `yaml:"channel_switch_delay"`
}

// DefaultConfig returns a 20 MHz 5 GHz configuration with the usual
// 802.11 defaults.
func DefaultConfig() Config {
	return Config{
		CenterFrequencyMHz:         5180,
		ChannelWidthMHz:            20,
		PrimaryCenterMHz:           5180,
		SupportedWidthsMHz:         []uint16{20},
		NoiseFigureDb:              7,
		RxSensitivityDbm:           -101,
		CcaEdThresholdDbm:          -62,
		CcaEdThresholdSecondaryDbm: -62,
		NumAntennas:                1,
		StaID:                      model.SuStaID,
		Pifs:                       25 * time.Microsecond,
		ChannelSwitchDelay:         250 * time.Microsecond,
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent
// fields and validating the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read phy config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse phy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects inconsistent channel and threshold settings.
func (c Config) Validate() error {
	switch c.ChannelWidthMHz {
	case 20, 40, 80, 160:
	default:
		return fmt.Errorf("%w: %d MHz", ErrInvalidWidth, c.ChannelWidthMHz)
	}
	if len(c.SupportedWidthsMHz) == 0 {
		return fmt.Errorf("%w: no supported widths", ErrInvalidChannel)
	}
	maxSupported := uint16(0)
	for _, w := range c.SupportedWidthsMHz {
		switch w {
		case 20, 40, 80, 160:
		default:
			return fmt.Errorf("%w: %d MHz", ErrInvalidWidth, w)
		}
		if w > maxSupported {
			maxSupported = w
		}
	}
	if c.ChannelWidthMHz > maxSupported {
		return fmt.Errorf("%w: operating width %d exceeds supported maximum %d",
			ErrInvalidChannel, c.ChannelWidthMHz, maxSupported)
	}
	operating := model.Band{CenterMHz: c.CenterFrequencyMHz, WidthMHz: c.ChannelWidthMHz}
	primary := model.Band{CenterMHz: c.PrimaryCenterMHz, WidthMHz: 20}
	if !operating.Contains(primary) {
		return fmt.Errorf("%w: primary %v outside operating channel %v",
			ErrInvalidChannel, primary, operating)
	}
	aligned := false
	for _, b := range model.SubBands(c.CenterFrequencyMHz, c.ChannelWidthMHz, 20) {
		if b == primary {
			aligned = true
			break
		}
	}
	if !aligned {
		return fmt.Errorf("%w: primary %v not aligned to the 20 MHz grid", ErrInvalidChannel, primary)
	}
	if c.RxSensitivityDbm > c.CcaEdThresholdDbm {
		return fmt.Errorf("%w: rx sensitivity %.1f dBm above CCA-ED threshold %.1f dBm",
			ErrInvalidThreshold, c.RxSensitivityDbm, c.CcaEdThresholdDbm)
	}
	if c.NumAntennas == 0 {
		return fmt.Errorf("%w: zero antennas", ErrInvalidChannel)
	}
	if c.Pifs <= 0 {
		return fmt.Errorf("%w: non-positive PIFS", ErrInvalidChannel)
	}
	return nil
}

// sortedSupportedWidths returns the supported widths ascending.
func (c Config) sortedSupportedWidths() []uint16 {
	widths := append([]uint16(nil), c.SupportedWidthsMHz...)
	sort.Slice(widths, func(i, j int) bool { return widths[i] < widths[j] })
	return widths
}

// secondaryThreshold returns the CCA threshold for secondary sub-channels
// evaluated as part of a bonded channel of the given total width.
func (c Config) secondaryThreshold(widthMHz uint16) float64 {
	if th, ok := c.SecondaryThresholdsByWidth[widthMHz]; ok {
		return th
	}
	return c.CcaEdThresholdSecondaryDbm
}
