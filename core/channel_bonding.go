package core

// ChannelBondingManager selects the channel width for the next
// transmission. The selection is finalized when transmission starts and
// embedded in the outgoing frame's header; it is never renegotiated
// mid-transmission.
type ChannelBondingManager interface {
	// UsableChannelWidth returns the width in MHz the PHY should
	// transmit at, given its current view of secondary sub-channel
	// occupancy.
	UsableChannelWidth(r *Receiver) uint16
}

// ConstantThresholdBondingManager picks the largest supported width for
// which every secondary 20 MHz sub-channel has been continuously idle
// for at least PIFS.
type ConstantThresholdBondingManager struct{}

// NewConstantThresholdBondingManager returns the manager.
func NewConstantThresholdBondingManager() *ConstantThresholdBondingManager {
	return &ConstantThresholdBondingManager{}
}

// UsableChannelWidth implements ChannelBondingManager.
func (m *ConstantThresholdBondingManager) UsableChannelWidth(r *Receiver) uint16 {
	best := uint16(20)
	for _, w := range r.cfg.sortedSupportedWidths() {
		if w <= best || w > r.cfg.ChannelWidthMHz {
			continue
		}
		idle := true
		for _, band := range r.secondarySubBands(w) {
			if r.SecondaryIdleDuration(band) < r.cfg.Pifs {
				idle = false
				break
			}
		}
		if !idle {
			break
		}
		best = w
	}
	return best
}
