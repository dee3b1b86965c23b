// Package color converts between sRGB, hex, Kelvin and CIE 1931 xy
// chromaticity, with clamping to the gamut triangle of the target light.
//
// Matrices and gamma follow the Philips Hue color conversion notes
// (Wide RGB D65), so values round-trip with what the bridge reports.
package color

import (
	"fmt"
	"math"
	"strconv"
)

// Mirek limits accepted by the bridge.
const (
	MirekMin = 153
	MirekMax = 500
)

// XY is a point in CIE 1931 xy chromaticity space.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Gamut is the triangle of reproducible colors for a light, given by the
// chromaticity of its red, green and blue primaries.
type Gamut struct {
	Red   XY `json:"red"`
	Green XY `json:"green"`
	Blue  XY `json:"blue"`
}

// Standard gamuts by hardware generation.
var (
	// GamutA covers the early color-only products.
	GamutA = Gamut{Red: XY{0.704, 0.296}, Green: XY{0.2151, 0.7106}, Blue: XY{0.138, 0.08}}
	// GamutB covers the first generation of color bulbs.
	GamutB = Gamut{Red: XY{0.675, 0.322}, Green: XY{0.4091, 0.518}, Blue: XY{0.167, 0.04}}
	// GamutC covers modern white and color ambiance products.
	GamutC = Gamut{Red: XY{0.6915, 0.3083}, Green: XY{0.17, 0.7}, Blue: XY{0.1532, 0.0475}}
)

// D65 white point, returned for pure black input.
var whitePoint = XY{X: 0.3127, Y: 0.3290}

func gamma(v float64) float64 {
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

func reverseGamma(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

// RGBToXY converts an sRGB triple (0-255 per channel) to xy chromaticity,
// clamped to the given gamut.
func RGBToXY(r, g, b uint8, gamut Gamut) XY {
	red := gamma(float64(r) / 255.0)
	green := gamma(float64(g) / 255.0)
	blue := gamma(float64(b) / 255.0)

	// Wide RGB D65 conversion matrix
	X := red*0.664511 + green*0.154324 + blue*0.162028
	Y := red*0.283881 + green*0.668433 + blue*0.047685
	Z := red*0.000088 + green*0.072310 + blue*0.986039

	total := X + Y + Z
	if total == 0 {
		return whitePoint
	}

	return ClampToGamut(XY{X: X / total, Y: Y / total}, gamut)
}

// XYToRGB converts xy chromaticity back to an sRGB triple. brightness is the
// luminance in 0-1. The point is clamped to the gamut before conversion.
func XYToRGB(xy XY, brightness float64, gamut Gamut) (r, g, b uint8) {
	xy = ClampToGamut(xy, gamut)

	x, y := xy.X, xy.Y
	if y == 0 {
		y = 0.00001
	}

	Y := brightness
	X := (Y / y) * x
	Z := (Y / y) * (1 - x - y)

	rf := X*1.656492 - Y*0.354851 - Z*0.255038
	gf := -X*0.707196 + Y*1.655397 + Z*0.036152
	bf := X*0.051713 - Y*0.121364 + Z*1.011530

	// At full luminance the linear channels can exceed 1; scaling the triple
	// by its maximum keeps the chromaticity instead of clipping it away.
	if m := math.Max(rf, math.Max(gf, bf)); m > 1 {
		rf /= m
		gf /= m
		bf /= m
	}

	rf = reverseGamma(rf)
	gf = reverseGamma(gf)
	bf = reverseGamma(bf)

	return clampChannel(rf), clampChannel(gf), clampChannel(bf)
}

func clampChannel(v float64) uint8 {
	scaled := math.Round(v * 255)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

// HexToXY converts a hex color code ("#FF5500", "FF5500" or "#F50") to xy
// chromaticity clamped to the gamut.
func HexToXY(hex string, gamut Gamut) (XY, error) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return XY{}, fmt.Errorf("invalid hex color %q", hex)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return XY{}, fmt.Errorf("invalid hex color %q", hex)
	}

	return RGBToXY(uint8(v>>16), uint8(v>>8), uint8(v), gamut), nil
}

// KelvinToMirek converts a color temperature to mirek, clamped to the range
// the bridge accepts.
func KelvinToMirek(kelvin int) int {
	if kelvin <= 0 {
		return MirekMax
	}
	mirek := 1000000 / kelvin
	if mirek < MirekMin {
		return MirekMin
	}
	if mirek > MirekMax {
		return MirekMax
	}
	return mirek
}

// MirekToKelvin converts mirek back to Kelvin.
func MirekToKelvin(mirek int) int {
	if mirek <= 0 {
		return 0
	}
	return 1000000 / mirek
}

// InGamut reports whether the point lies inside the gamut triangle, using
// barycentric coordinates.
func InGamut(p XY, g Gamut) bool {
	v0 := XY{g.Blue.X - g.Red.X, g.Blue.Y - g.Red.Y}
	v1 := XY{g.Green.X - g.Red.X, g.Green.Y - g.Red.Y}
	v2 := XY{p.X - g.Red.X, p.Y - g.Red.Y}

	dot00 := v0.X*v0.X + v0.Y*v0.Y
	dot01 := v0.X*v1.X + v0.Y*v1.Y
	dot02 := v0.X*v2.X + v0.Y*v2.Y
	dot11 := v1.X*v1.X + v1.Y*v1.Y
	dot12 := v1.X*v2.X + v1.Y*v2.Y

	denom := dot00*dot11 - dot01*dot01
	if denom == 0 {
		return false
	}

	u := (dot11*dot02 - dot01*dot12) / denom
	v := (dot00*dot12 - dot01*dot02) / denom

	return u >= 0 && v >= 0 && u+v <= 1
}

// ClampToGamut returns the point unchanged when it lies inside the gamut,
// otherwise the nearest point on the triangle's edges.
func ClampToGamut(p XY, g Gamut) XY {
	if InGamut(p, g) {
		return p
	}

	onRG := closestOnSegment(p, g.Red, g.Green)
	onGB := closestOnSegment(p, g.Green, g.Blue)
	onBR := closestOnSegment(p, g.Blue, g.Red)

	best := onRG
	bestDist := distance(p, onRG)
	if d := distance(p, onGB); d < bestDist {
		best, bestDist = onGB, d
	}
	if d := distance(p, onBR); d < bestDist {
		best = onBR
	}
	return best
}

func closestOnSegment(p, a, b XY) XY {
	apX := p.X - a.X
	apY := p.Y - a.Y
	abX := b.X - a.X
	abY := b.Y - a.Y

	abSq := abX*abX + abY*abY
	if abSq == 0 {
		return a
	}

	t := (apX*abX + apY*abY) / abSq
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	return XY{X: a.X + t*abX, Y: a.Y + t*abY}
}

func distance(a, b XY) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
