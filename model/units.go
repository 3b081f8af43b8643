package model

import "math"

// Power arithmetic in the core is linear-domain watts. dB and dBm appear
// only at the configuration and logging boundary, through these helpers.

// DbToRatio converts a dB value to a linear ratio.
func DbToRatio(db float64) float64 {
	return math.Pow(10, db/10)
}

// RatioToDb converts a linear ratio to dB.
func RatioToDb(ratio float64) float64 {
	return 10 * math.Log10(ratio)
}

// DbmToW converts dBm to watts.
func DbmToW(dbm float64) float64 {
	return math.Pow(10, (dbm-30)/10)
}

// WToDbm converts watts to dBm.
func WToDbm(w float64) float64 {
	return 10*math.Log10(w) + 30
}
