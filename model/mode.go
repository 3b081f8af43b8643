package model

import (
	"fmt"
	"math"
	"time"
)

// ModulationClass groups Wi-Fi modes by PHY generation; it determines
// symbol timing and data-subcarrier counts.
type ModulationClass int

const (
	ModulationOfdm ModulationClass = iota // legacy 802.11a/g
	ModulationHt                          // 802.11n
	ModulationVht                         // 802.11ac
	ModulationHe                          // 802.11ax
)

func (c ModulationClass) String() string {
	switch c {
	case ModulationOfdm:
		return "OFDM"
	case ModulationHt:
		return "HT"
	case ModulationVht:
		return "VHT"
	case ModulationHe:
		return "HE"
	default:
		return "unknown"
	}
}

// Preamble identifies the preamble format of a PPDU.
type Preamble int

const (
	PreambleLong Preamble = iota
	PreambleHt
	PreambleVht
	PreambleHe   // HE SU
	PreambleHeMu // HE MU (DL OFDMA)
	PreambleHeTb // HE trigger-based (UL OFDMA)
)

func (p Preamble) String() string {
	switch p {
	case PreambleLong:
		return "LONG"
	case PreambleHt:
		return "HT"
	case PreambleVht:
		return "VHT"
	case PreambleHe:
		return "HE_SU"
	case PreambleHeMu:
		return "HE_MU"
	case PreambleHeTb:
		return "HE_TB"
	default:
		return "unknown"
	}
}

// Mode describes one modulation and coding scheme analytically, by its
// constellation size and coding rate, rather than by a rate table. Data
// rates are derived from symbol timing and data-subcarrier counts.
type Mode struct {
	Name              string
	Class             ModulationClass
	ConstellationSize uint16  // 2 (BPSK) .. 1024
	CodingRate        float64 // e.g. 1/2, 3/4, 5/6
}

func (m Mode) String() string { return m.Name }

// IsZero reports whether the mode is the unset zero value.
func (m Mode) IsZero() bool { return m.ConstellationSize == 0 }

// bitsPerSubcarrier is log2 of the constellation size.
func (m Mode) bitsPerSubcarrier() float64 {
	return math.Log2(float64(m.ConstellationSize))
}

// dataSubcarriers returns the number of data subcarriers for the given
// channel width in MHz.
func (m Mode) dataSubcarriers(widthMHz uint16) float64 {
	switch m.Class {
	case ModulationOfdm:
		// Legacy OFDM always occupies one 20 MHz channel.
		return 48
	case ModulationHe:
		switch widthMHz {
		case 40:
			return 468
		case 80:
			return 980
		case 160:
			return 1960
		default:
			return 234
		}
	default: // HT, VHT
		switch widthMHz {
		case 40:
			return 108
		case 80:
			return 234
		case 160:
			return 468
		default:
			return 52
		}
	}
}

// symbolDuration returns the OFDM symbol time including the guard interval.
func (m Mode) symbolDuration(gi time.Duration) time.Duration {
	base := 3200 * time.Nanosecond
	if m.Class == ModulationHe {
		base = 12800 * time.Nanosecond
	}
	if gi <= 0 {
		gi = 800 * time.Nanosecond
	}
	return base + gi
}

// DataRateBps returns the PHY data rate in bits per second for the given
// channel width, guard interval and number of spatial streams.
func (m Mode) DataRateBps(widthMHz uint16, gi time.Duration, nss uint8) float64 {
	if m.IsZero() {
		panic("model: data rate requested for zero Mode")
	}
	if nss == 0 {
		nss = 1
	}
	bitsPerSymbol := m.dataSubcarriers(widthMHz) * m.bitsPerSubcarrier() * m.CodingRate * float64(nss)
	return bitsPerSymbol / m.symbolDuration(gi).Seconds()
}

// OfdmRate6Mbps is the legacy 6 Mbit/s base mode (BPSK, rate 1/2); the
// legacy PHY header (L-SIG) is always sent at this rate.
func OfdmRate6Mbps() Mode {
	return Mode{Name: "OfdmRate6Mbps", Class: ModulationOfdm, ConstellationSize: 2, CodingRate: 1.0 / 2}
}

// OfdmRate12Mbps returns the legacy 12 Mbit/s mode (QPSK, rate 1/2).
func OfdmRate12Mbps() Mode {
	return Mode{Name: "OfdmRate12Mbps", Class: ModulationOfdm, ConstellationSize: 4, CodingRate: 1.0 / 2}
}

// OfdmRate24Mbps returns the legacy 24 Mbit/s mode (16-QAM, rate 1/2).
func OfdmRate24Mbps() Mode {
	return Mode{Name: "OfdmRate24Mbps", Class: ModulationOfdm, ConstellationSize: 16, CodingRate: 1.0 / 2}
}

// OfdmRate54Mbps returns the legacy 54 Mbit/s mode (64-QAM, rate 3/4).
func OfdmRate54Mbps() Mode {
	return Mode{Name: "OfdmRate54Mbps", Class: ModulationOfdm, ConstellationSize: 64, CodingRate: 3.0 / 4}
}

// HeMcs returns the HE (802.11ax) mode for the given MCS index 0..11.
func HeMcs(index int) Mode {
	type cr struct {
		q uint16
		r float64
	}
	table := []cr{
		{2, 1.0 / 2}, {4, 1.0 / 2}, {4, 3.0 / 4}, {16, 1.0 / 2},
		{16, 3.0 / 4}, {64, 2.0 / 3}, {64, 3.0 / 4}, {64, 5.0 / 6},
		{256, 3.0 / 4}, {256, 5.0 / 6}, {1024, 3.0 / 4}, {1024, 5.0 / 6},
	}
	if index < 0 || index >= len(table) {
		panic(fmt.Sprintf("model: HE MCS index %d out of range", index))
	}
	return Mode{
		Name:              fmt.Sprintf("HeMcs%d", index),
		Class:             ModulationHe,
		ConstellationSize: table[index].q,
		CodingRate:        table[index].r,
	}
}

// VhtMcs returns the VHT (802.11ac) mode for the given MCS index 0..9.
func VhtMcs(index int) Mode {
	type cr struct {
		q uint16
		r float64
	}
	table := []cr{
		{2, 1.0 / 2}, {4, 1.0 / 2}, {4, 3.0 / 4}, {16, 1.0 / 2}, {16, 3.0 / 4},
		{64, 2.0 / 3}, {64, 3.0 / 4}, {64, 5.0 / 6}, {256, 3.0 / 4}, {256, 5.0 / 6},
	}
	if index < 0 || index >= len(table) {
		panic(fmt.Sprintf("model: VHT MCS index %d out of range", index))
	}
	return Mode{
		Name:              fmt.Sprintf("VhtMcs%d", index),
		Class:             ModulationVht,
		ConstellationSize: table[index].q,
		CodingRate:        table[index].r,
	}
}
