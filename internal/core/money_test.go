package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true}, // zero allowed, defaults apply upstream
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in  string
		out float64
	}{
		{"3", 3},
		{"0.5", 0.5},
		{"2,5", 2.5},
		{" 1 ", 1},
		{"", 0},
		{"abc", 0},
		{"-2", 0},
	}
	for _, tc := range cases {
		if got := ParseQuantity(tc.in); got != tc.out {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestFormatEuros(t *testing.T) {
	cases := []struct {
		cents int64
		out   string
	}{
		{0, "€0,00"},
		{1, "€0,01"},
		{1250, "€12,50"},
		{2000, "€20,00"},
		{-350, "-€3,50"},
	}
	for _, tc := range cases {
		if got := FormatEuros(tc.cents); got != tc.out {
			t.Fatalf("%d expected %q, got %q", tc.cents, tc.out, got)
		}
	}
}
