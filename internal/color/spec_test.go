package color

import "testing"

func TestParseSpecTemperaturePreset(t *testing.T) {
	s, ok := ParseSpec("warm", GamutC)
	if !ok {
		t.Fatal("'warm' should parse")
	}
	if !s.IsTemperature() {
		t.Fatal("'warm' should be a temperature")
	}
	if s.Mirek != 370 {
		t.Errorf("'warm' = 2700K = 370 mirek, got %d", s.Mirek)
	}
}

func TestParseSpecKelvinLiteral(t *testing.T) {
	s, ok := ParseSpec("4000k", GamutC)
	if !ok || !s.IsTemperature() {
		t.Fatal("'4000k' should parse as temperature")
	}
	if s.Mirek != 250 {
		t.Errorf("4000K = 250 mirek, got %d", s.Mirek)
	}

	if _, ok := ParseSpec("999k", GamutC); ok {
		t.Error("kelvin below 1000 should be rejected")
	}
	if _, ok := ParseSpec("20000k", GamutC); ok {
		t.Error("kelvin above 10000 should be rejected")
	}
}

func TestParseSpecNamedColor(t *testing.T) {
	s, ok := ParseSpec("red", GamutC)
	if !ok {
		t.Fatal("'red' should parse")
	}
	if s.IsTemperature() || s.XY == nil {
		t.Fatal("'red' should resolve to a chromaticity point")
	}
	want := RGBToXY(255, 0, 0, GamutC)
	if *s.XY != want {
		t.Errorf("red resolved to %+v, want %+v", *s.XY, want)
	}
}

func TestParseSpecPresetShadowsColorName(t *testing.T) {
	// "daylight" exists in both tables; presets win.
	s, ok := ParseSpec("daylight", GamutC)
	if !ok || !s.IsTemperature() {
		t.Fatal("'daylight' should resolve as a temperature preset")
	}
	if s.Mirek != KelvinToMirek(6500) {
		t.Errorf("daylight = %d mirek, got %d", KelvinToMirek(6500), s.Mirek)
	}
}

func TestParseSpecHexAndRGB(t *testing.T) {
	hexSetting, ok := ParseSpec("#ff0000", GamutC)
	if !ok || hexSetting.XY == nil {
		t.Fatal("hex should parse to xy")
	}
	tripleSetting, ok := ParseSpec("255,0,0", GamutC)
	if !ok || tripleSetting.XY == nil {
		t.Fatal("rgb triple should parse to xy")
	}
	wrapped, ok := ParseSpec("rgb(255, 0, 0)", GamutC)
	if !ok || wrapped.XY == nil {
		t.Fatal("rgb() form should parse to xy")
	}
	if *hexSetting.XY != *tripleSetting.XY || *hexSetting.XY != *wrapped.XY {
		t.Error("all three red spellings should agree")
	}

	if _, ok := ParseSpec("300,0,0", GamutC); ok {
		t.Error("out-of-range channel should be rejected")
	}
}

func TestParseSpecNonColor(t *testing.T) {
	// Scene names are resolved against bridge scenes, never as colors.
	for _, text := range []string{"", "kitchen", "living room", "50%", "relax", "energize"} {
		if _, ok := ParseSpec(text, GamutC); ok {
			t.Errorf("%q should not parse as a color", text)
		}
	}
}

func TestBrightnessFromText(t *testing.T) {
	cases := []struct {
		text string
		want float64
		ok   bool
	}{
		{"dim kitchen to 50%", 50, true},
		{"set lamp to 0%", 1, true},
		{"set lamp to 150%", 100, true},
		{"set den to full", 100, true},
		{"high", 80, true},
		{"medium please", 50, true},
		{"make it low", 25, true},
		{"minimum", 1, true},
		{"turn on kitchen", 0, false},
	}

	for _, tc := range cases {
		got, ok := BrightnessFromText(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("BrightnessFromText(%q) = %v,%v want %v,%v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}
