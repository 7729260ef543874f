package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("expected %q valid", u)
		}
	}
	for _, u := range []string{"", "knots", "KPH"} {
		if IsValid(u) {
			t.Errorf("expected %q invalid", u)
		}
	}
}

func TestConvertSpeed(t *testing.T) {
	cases := []struct {
		units string
		want  float64
	}{
		{KPH, 100},
		{KMPH, 100},
		{MPH, 62.137119223733},
		{MPS, 27.77777777},
		{"unknown", 100},
	}
	for _, tc := range cases {
		got := ConvertSpeed(100, tc.units)
		if math.Abs(got-tc.want) > 0.001 {
			t.Errorf("ConvertSpeed(100, %q) = %v, want %v", tc.units, got, tc.want)
		}
	}
}
