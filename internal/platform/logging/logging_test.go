package logging

import "testing"

func TestTruthy(t *testing.T) {
	tests := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"FALSE": false,
		" off ": false,
		"No":    false,
		"1":     true,
		"true":  true,
		"yes":   true,
		"debug": true,
	}
	for in, want := range tests {
		if got := Truthy(in); got != want {
			t.Fatalf("Truthy(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New("chatty", "console")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.Core().Enabled(-1) {
		t.Fatal("debug should be disabled at the fallback level")
	}
}
