package synthcore

import "math"

// DistanceModel selects the falloff curve a spatial source's distance
// gain follows, numbered to match the original engine's
// SYZ_DISTANCE_MODEL enum, whose own comment there describes it as
// "modeled after the WebAudio spec" — the formulas below follow the
// Web Audio API's PannerNode distance models directly, since the
// filtered original implementation did not carry the model's own
// source file.
type DistanceModel int

const (
	DistanceModelNone DistanceModel = iota
	DistanceModelLinear
	DistanceModelExponential
	DistanceModelInverse
)

// distanceParams bundles the distance-attenuation axis of a spatial
// source's property set (§3 "distance parameters").
type distanceParams struct {
	model                  DistanceModel
	ref                    float64 // distance at which gain is 1.0
	max                    float64 // distance beyond which gain stops falling (linear model only)
	rolloff                float64
	closenessBoost         float64 // extra linear gain applied as distance approaches zero
	closenessBoostDistance float64 // distance at which the boost reaches full strength
}

func defaultDistanceParams() distanceParams {
	return distanceParams{
		model:   DistanceModelExponential,
		ref:     1,
		max:     100,
		rolloff: 1,
	}
}

// gain computes the distance attenuation factor for a source this far
// from the listener, per the Web Audio distance-model formulas, plus
// an optional closeness boost for sources nearer than
// closenessBoostDistance (a supplemental affordance not present in the
// retrieval pack's filtered sources, documented as a simplification).
func (p distanceParams) gain(distance float64) float32 {
	var g float64
	switch p.model {
	case DistanceModelLinear:
		ref, max := p.ref, p.max
		if max <= ref {
			g = 1
			break
		}
		d := distance
		if d < ref {
			d = ref
		} else if d > max {
			d = max
		}
		g = 1 - p.rolloff*(d-ref)/(max-ref)
	case DistanceModelInverse:
		d := distance
		if d < p.ref {
			d = p.ref
		}
		g = p.ref / (p.ref + p.rolloff*(d-p.ref))
	case DistanceModelExponential:
		d := distance
		if d < p.ref {
			d = p.ref
		}
		if p.ref <= 0 {
			g = 1
		} else {
			g = math.Pow(d/p.ref, -p.rolloff)
		}
	default: // DistanceModelNone
		g = 1
	}
	if g < 0 {
		g = 0
	} else if g > 1 {
		g = 1
	}
	if p.closenessBoostDistance > 0 && distance < p.closenessBoostDistance {
		t := 1 - distance/p.closenessBoostDistance
		g += p.closenessBoost * t
	}
	return float32(g)
}

// listenerRelativeAngles resolves a source's azimuth and elevation, in
// degrees, relative to the listener's position and orientation
// (at-vector then up-vector). Grounded on the original engine's
// Source3D::run deriving its panner angles from DistanceParamsMixin's
// position against the context's listener pose every block, rather
// than accepting manual azimuth/elevation setters as PannedSource
// does; the vector math itself (basis construction, atan2 decompose)
// is this module's own rendering, since Source3D::run's body was not
// present in the filtered sources.
func listenerRelativeAngles(listenerPos [3]float64, listenerOrientation [6]float64, sourcePos [3]float64) (azimuth, elevation, distance float64) {
	at := normalize3(listenerOrientation[0], listenerOrientation[1], listenerOrientation[2])
	up := normalize3(listenerOrientation[3], listenerOrientation[4], listenerOrientation[5])
	right := cross3(at, up)

	delta := [3]float64{sourcePos[0] - listenerPos[0], sourcePos[1] - listenerPos[1], sourcePos[2] - listenerPos[2]}
	distance = math.Sqrt(delta[0]*delta[0] + delta[1]*delta[1] + delta[2]*delta[2])
	if distance == 0 {
		return 0, 0, 0
	}

	x := dot3(delta, right)
	y := dot3(delta, up)
	z := dot3(delta, at)

	azimuth = math.Atan2(x, z) * 180 / math.Pi
	elevation = math.Atan2(y, math.Hypot(x, z)) * 180 / math.Pi
	return azimuth, elevation, distance
}

func normalize3(x, y, z float64) [3]float64 {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return [3]float64{0, 0, 0}
	}
	return [3]float64{x / n, y / n, z / n}
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
