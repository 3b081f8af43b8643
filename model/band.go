package model

import "fmt"

// Band identifies one contiguous spectral region as a (center frequency,
// width) pair, both in MHz. The interference tracker keys its per-band
// ledgers by Band, so the same fixed-width subdivision must be reused
// consistently across queries.
type Band struct {
	CenterMHz uint16 `json:"CenterMHz" yaml:"center_mhz"`
	WidthMHz  uint16 `json:"WidthMHz" yaml:"width_mhz"`
}

// LowEdgeMHz returns the lower edge frequency of the band.
func (b Band) LowEdgeMHz() uint16 { return b.CenterMHz - b.WidthMHz/2 }

// HighEdgeMHz returns the upper edge frequency of the band.
func (b Band) HighEdgeMHz() uint16 { return b.CenterMHz + b.WidthMHz/2 }

// Contains reports whether other lies entirely within b.
func (b Band) Contains(other Band) bool {
	return other.LowEdgeMHz() >= b.LowEdgeMHz() && other.HighEdgeMHz() <= b.HighEdgeMHz()
}

// Overlaps reports whether the two bands share any spectrum.
func (b Band) Overlaps(other Band) bool {
	return b.LowEdgeMHz() < other.HighEdgeMHz() && other.LowEdgeMHz() < b.HighEdgeMHz()
}

func (b Band) String() string {
	return fmt.Sprintf("%d/%dMHz", b.CenterMHz, b.WidthMHz)
}

// SubBands splits an operating channel (center, width) into consecutive
// sub-bands of the given width. width must be a multiple of sub.
func SubBands(centerMHz, widthMHz, subMHz uint16) []Band {
	if subMHz == 0 || widthMHz%subMHz != 0 {
		panic(fmt.Sprintf("model: cannot split %d MHz channel into %d MHz sub-bands", widthMHz, subMHz))
	}
	low := centerMHz - widthMHz/2
	n := widthMHz / subMHz
	bands := make([]Band, 0, n)
	for i := uint16(0); i < n; i++ {
		bands = append(bands, Band{CenterMHz: low + i*subMHz + subMHz/2, WidthMHz: subMHz})
	}
	return bands
}

// ContainingBand returns the outer-width sub-band of the operating channel
// (center, width) that contains the inner band. This is how the receiver
// maps its primary 20 MHz channel onto wider bonded bands.
func ContainingBand(centerMHz, widthMHz uint16, inner Band, outerMHz uint16) Band {
	for _, b := range SubBands(centerMHz, widthMHz, outerMHz) {
		if b.Contains(inner) {
			return b
		}
	}
	panic(fmt.Sprintf("model: band %v not within %d/%d MHz channel at %d MHz granularity",
		inner, centerMHz, widthMHz, outerMHz))
}
