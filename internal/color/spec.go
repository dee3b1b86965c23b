package color

import (
	"regexp"
	"strconv"
	"strings"
)

// Setting is a resolved color specification: either a chromaticity point or
// a color temperature, never both.
type Setting struct {
	XY    *XY
	Mirek int
}

// IsTemperature reports whether the setting is a color temperature.
func (s Setting) IsTemperature() bool {
	return s.Mirek != 0
}

// Named colors resolvable in command text (sRGB).
var colorNames = map[string][3]uint8{
	"red":   {255, 0, 0},
	"green": {0, 255, 0},
	"blue":  {0, 0, 255},

	"yellow":  {255, 255, 0},
	"cyan":    {0, 255, 255},
	"magenta": {255, 0, 255},

	"orange":    {255, 165, 0},
	"pink":      {255, 192, 203},
	"purple":    {128, 0, 128},
	"violet":    {238, 130, 238},
	"indigo":    {75, 0, 130},
	"lime":      {0, 255, 0},
	"teal":      {0, 128, 128},
	"aqua":      {0, 255, 255},
	"coral":     {255, 127, 80},
	"salmon":    {250, 128, 114},
	"gold":      {255, 215, 0},
	"turquoise": {64, 224, 208},
	"lavender":  {230, 230, 250},

	"white":      {255, 255, 255},
	"warm white": {255, 244, 229},
	"cool white": {255, 255, 255},
	"daylight":   {255, 255, 251},
}

// Temperature presets in Kelvin. Checked before the named-color table, so
// "daylight" resolves as a temperature rather than near-white xy. Scene
// names like "relax" or "energize" are deliberately absent: those are
// resolved against the bridge's scenes, not as colors.
var temperaturePresets = map[string]int{
	"candle":   2000,
	"warm":     2700,
	"soft":     3000,
	"neutral":  4000,
	"cool":     5000,
	"daylight": 6500,
	"bright":   6500,
	"reading":  4000,
}

var (
	kelvinRe = regexp.MustCompile(`^(\d{3,5})\s*k$`)
	hexRe    = regexp.MustCompile(`^#?([0-9a-f]{3}|[0-9a-f]{6})$`)
	rgbRe    = regexp.MustCompile(`^(?:rgb\s*\(\s*)?(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*\)?$`)
)

// ParseSpec resolves a free-text color specification. Resolution order:
// temperature preset, Kelvin literal, named color, hex code, rgb triple.
// The second return value is false when the text is not a color.
func ParseSpec(spec string, gamut Gamut) (Setting, bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" {
		return Setting{}, false
	}

	if kelvin, ok := temperaturePresets[spec]; ok {
		return Setting{Mirek: KelvinToMirek(kelvin)}, true
	}

	if m := kelvinRe.FindStringSubmatch(spec); m != nil {
		kelvin, _ := strconv.Atoi(m[1])
		if kelvin >= 1000 && kelvin <= 10000 {
			return Setting{Mirek: KelvinToMirek(kelvin)}, true
		}
		return Setting{}, false
	}

	if rgb, ok := colorNames[spec]; ok {
		xy := RGBToXY(rgb[0], rgb[1], rgb[2], gamut)
		return Setting{XY: &xy}, true
	}

	if m := hexRe.FindStringSubmatch(spec); m != nil {
		xy, err := HexToXY(m[1], gamut)
		if err == nil {
			return Setting{XY: &xy}, true
		}
		return Setting{}, false
	}

	if m := rgbRe.FindStringSubmatch(spec); m != nil {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		if r <= 255 && g <= 255 && b <= 255 {
			xy := RGBToXY(uint8(r), uint8(g), uint8(b), gamut)
			return Setting{XY: &xy}, true
		}
	}

	return Setting{}, false
}

// brightnessWords maps word buckets to percentages.
var brightnessWords = map[string]float64{
	"full": 100, "max": 100, "maximum": 100, "bright": 100, "brightest": 100,
	"high":   80,
	"medium": 50, "half": 50, "mid": 50,
	"low": 25, "dim": 25,
	"minimum": 1, "min": 1, "lowest": 1, "dimmest": 1,
}

var percentRe = regexp.MustCompile(`(\d{1,3})\s*%`)

// BrightnessFromText extracts a brightness percentage from command text, from
// either an "N%" pattern or a word bucket. Returns false when absent.
func BrightnessFromText(text string) (float64, bool) {
	text = strings.ToLower(text)

	if m := percentRe.FindStringSubmatch(text); m != nil {
		v, _ := strconv.Atoi(m[1])
		if v < 1 {
			v = 1
		}
		if v > 100 {
			v = 100
		}
		return float64(v), true
	}

	for _, word := range strings.Fields(text) {
		if v, ok := brightnessWords[word]; ok {
			return v, true
		}
	}

	return 0, false
}
