package model

import "time"

// SuStaID is the station identifier used for single-user transmissions.
const SuStaID uint16 = 0xFFFF

// UserInfo carries the per-user allocation of a multi-user transmission.
type UserInfo struct {
	Mode Mode
	Nss  uint8
}

// TxVector describes how a PPDU is transmitted: modulation and coding,
// preamble format, channel width, guard interval and spatial streams.
// It is carried unchanged inside the signal event so the receiver can
// evaluate header and payload chunks with the right parameters.
type TxVector struct {
	Mode          Mode
	Preamble      Preamble
	ChannelWidth  uint16 // MHz
	GuardInterval time.Duration
	Nss           uint8
	TxPowerDbm    float64
	Aggregation   bool

	// Users holds per-station allocations for MU transmissions, keyed by
	// station ID. Empty for single-user PPDUs.
	Users map[uint16]UserInfo
}

// IsMu reports whether this vector describes a multi-user transmission.
func (v TxVector) IsMu() bool { return len(v.Users) > 0 }

// ModeForSta returns the payload mode for the given station: the per-user
// allocation for MU transmissions, the common mode otherwise.
func (v TxVector) ModeForSta(staID uint16) Mode {
	if u, ok := v.Users[staID]; ok {
		return u.Mode
	}
	return v.Mode
}

// NssForSta returns the spatial-stream count for the given station.
func (v TxVector) NssForSta(staID uint16) uint8 {
	if u, ok := v.Users[staID]; ok && u.Nss > 0 {
		return u.Nss
	}
	if v.Nss == 0 {
		return 1
	}
	return v.Nss
}
