package model

import "time"

// Mpdu is one MAC protocol data unit carried inside a PSDU. Only the size
// matters to the PHY; it determines the share of the payload window the
// MPDU occupies.
type Mpdu struct {
	SizeBytes uint32
}

// Psdu is the MAC payload of a PPDU. An aggregated PSDU carries several
// MPDUs that the receiver evaluates independently.
type Psdu struct {
	Mpdus []Mpdu
}

// NewPsdu builds a single-MPDU PSDU of the given size.
func NewPsdu(sizeBytes uint32) *Psdu {
	return &Psdu{Mpdus: []Mpdu{{SizeBytes: sizeBytes}}}
}

// NewAggregatePsdu builds an A-MPDU from the given subframe sizes.
func NewAggregatePsdu(sizes ...uint32) *Psdu {
	mpdus := make([]Mpdu, 0, len(sizes))
	for _, s := range sizes {
		mpdus = append(mpdus, Mpdu{SizeBytes: s})
	}
	return &Psdu{Mpdus: mpdus}
}

// SizeBytes returns the total PSDU size.
func (p *Psdu) SizeBytes() uint32 {
	var total uint32
	for _, m := range p.Mpdus {
		total += m.SizeBytes
	}
	return total
}

// IsAggregate reports whether the PSDU carries more than one MPDU.
func (p *Psdu) IsAggregate() bool { return len(p.Mpdus) > 1 }

// Ppdu is one PHY-layer frame: preamble, header and one PSDU per
// addressed station. It is immutable once created and shared read-only
// between the interference ledger, the receiver's current-event pointer
// and scheduled callbacks.
type Ppdu struct {
	// UID uniquely identifies the PPDU within a simulation run. UL MU
	// responses to the same trigger share a UID so the receiver can
	// treat their overlapping signals as one reception.
	UID uint64

	TxVector TxVector
	Duration time.Duration

	psdus map[uint16]*Psdu
}

// NewPpdu builds a single-user PPDU.
func NewPpdu(uid uint64, psdu *Psdu, txVector TxVector, duration time.Duration) *Ppdu {
	return &Ppdu{
		UID:      uid,
		TxVector: txVector,
		Duration: duration,
		psdus:    map[uint16]*Psdu{SuStaID: psdu},
	}
}

// NewMuPpdu builds a multi-user PPDU carrying one PSDU per station.
func NewMuPpdu(uid uint64, psdus map[uint16]*Psdu, txVector TxVector, duration time.Duration) *Ppdu {
	copied := make(map[uint16]*Psdu, len(psdus))
	for sta, p := range psdus {
		copied[sta] = p
	}
	return &Ppdu{
		UID:      uid,
		TxVector: txVector,
		Duration: duration,
		psdus:    copied,
	}
}

// PsduFor returns the PSDU addressed to the given station, or the
// single-user PSDU when the PPDU is not multi-user. Nil when the PPDU
// carries nothing for that station.
func (p *Ppdu) PsduFor(staID uint16) *Psdu {
	if psdu, ok := p.psdus[staID]; ok {
		return psdu
	}
	return p.psdus[SuStaID]
}

// IsMu reports whether the PPDU is a multi-user transmission.
func (p *Ppdu) IsMu() bool { return p.TxVector.IsMu() }

// IsUlMu reports whether the PPDU is an uplink (trigger-based) MU
// transmission, whose payload starts later than the common preamble and
// arrives as several concurrent signals sharing one UID.
func (p *Ppdu) IsUlMu() bool { return p.TxVector.Preamble == PreambleHeTb }

// UidSource issues monotonically increasing PPDU UIDs. Each simulation
// owns its own source rather than sharing process-global state, so
// independent simulations can run side by side in tests.
type UidSource struct {
	next uint64
}

// Next returns a fresh UID.
func (u *UidSource) Next() uint64 {
	u.next++
	return u.next
}

// Peek returns the most recently issued UID without consuming one.
func (u *UidSource) Peek() uint64 { return u.next }
