package fit

import "math"

// Bounded parameters are fitted through an unconstrained internal variable
// so the optimizer can never leave [Min, Max].

func toInternal(p Param, v float64) float64 {
	lo, hi := !math.IsInf(p.Min, -1), !math.IsInf(p.Max, 1)

	switch {
	case lo && hi:
		return math.Asin(2*(v-p.Min)/(p.Max-p.Min) - 1)
	case lo:
		return math.Sqrt(math.Pow(v-p.Min+1, 2) - 1)
	case hi:
		return math.Sqrt(math.Pow(p.Max-v+1, 2) - 1)
	default:
		return v
	}
}

func toExternal(p Param, u float64) float64 {
	lo, hi := !math.IsInf(p.Min, -1), !math.IsInf(p.Max, 1)

	switch {
	case lo && hi:
		return p.Min + (math.Sin(u)+1)*(p.Max-p.Min)/2
	case lo:
		return p.Min - 1 + math.Sqrt(u*u+1)
	case hi:
		return p.Max + 1 - math.Sqrt(u*u+1)
	default:
		return u
	}
}
