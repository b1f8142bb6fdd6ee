package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("expected nil view to pass, got %v", err)
	}
}

func TestPausesToggle(t *testing.T) {
	pauses := NewPauses(" Vault ")
	if err := Guard(pauses, "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "presale"); err != nil {
		t.Fatalf("unexpected pause for other module: %v", err)
	}
	pauses.Set("vault", false)
	if err := Guard(pauses, "vault"); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module should never be paused: %v", err)
	}
}
