// Package consts holds physical constants and the unit conversions used when
// reading instrument traces.
package consts

import "math"

// CODATA 2018. H, E, KB and C are exact.
const (
	H    = 6.62607015e-34    // J s
	Hbar = H / (2 * math.Pi) // J s
	KB   = 1.380649e-23      // J/K
	E    = 1.602176634e-19   // C
	C    = 299792458.0       // m/s
	Phi0 = H / (2 * E)       // Wb
	Mu0  = 1.25663706212e-6
	Eps0 = 8.8541878128e-12
)

// DBmToWatts converts a power in dBm to watts.
func DBmToWatts(dbm float64) float64 {
	return 1e-3 * math.Pow(10, dbm/10)
}

// WattsToDBm converts a power in watts to dBm. Zero power is -Inf.
func WattsToDBm(w float64) float64 {
	return 10 * math.Log10(w/1e-3)
}

// DBToLinear converts a power ratio in dB to a linear ratio.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// LinearToDB converts a linear power ratio to dB.
func LinearToDB(x float64) float64 {
	return 10 * math.Log10(x)
}

// DBmToNanovolts converts spectrum-analyzer dBm readings to the linear
// "nV" scale used on our spectral density plots.
func DBmToNanovolts(dbm float64) float64 {
	return 1000 * math.Pow(10, 6) * math.Pow(10, dbm/10.)
}

// PhotonNumber returns the mean intracavity photon number of a resonator
// driven at resonance with powerDBm at its input. Linewidths are given in Hz.
func PhotonNumber(powerDBm, f0, kappaExt, kappa float64) float64 {
	p := DBmToWatts(powerDBm)
	w := 2 * math.Pi * f0
	ke := 2 * math.Pi * kappaExt
	k := 2 * math.Pi * kappa

	return 4 * p * ke / (Hbar * w * k * k)
}

// ThermalOccupation is the Bose-Einstein occupation of a mode at f (Hz) and
// temperature temp (K). Non-positive temperatures give zero.
func ThermalOccupation(f, temp float64) float64 {
	if temp <= 0 {
		return 0
	}

	return 1 / math.Expm1(H*f/(KB*temp))
}
