package model

import "testing"

func TestIsStrikeEvent(t *testing.T) {
	cases := []struct {
		eventType string
		want      bool
	}{
		{ViolationTabSwitch, true},
		{ViolationWindowBlur, true},
		{ViolationBlockedKey, true},
		{ViolationFullscreen, false},
		{"telepathy", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsStrikeEvent(tc.eventType); got != tc.want {
			t.Errorf("IsStrikeEvent(%q) = %t, want %t", tc.eventType, got, tc.want)
		}
	}
}
