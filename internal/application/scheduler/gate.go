package scheduler

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrHFTLocked se devuelve cuando el modo HFT no pasa la doble confirmación.
var ErrHFTLocked = errors.New("hft mode locked")

// HFTGate es la doble confirmación del modo HFT: un flag explícito más una
// passphrase que debe coincidir con el hash bcrypt configurado.
type HFTGate struct {
	Enabled        bool
	PassphraseHash string // bcrypt, desde la config
	Passphrase     string // desde SMCBOT_HFT_PASSPHRASE
}

// VerifyHFTGate se llama una sola vez al arrancar en modo HFT.
func VerifyHFTGate(g HFTGate) error {
	if !g.Enabled {
		return fmt.Errorf("scheduler.VerifyHFTGate: %w: hft.enabled is false", ErrHFTLocked)
	}
	if g.PassphraseHash == "" || g.Passphrase == "" {
		return fmt.Errorf("scheduler.VerifyHFTGate: %w: passphrase not configured", ErrHFTLocked)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(g.PassphraseHash), []byte(g.Passphrase)); err != nil {
		return fmt.Errorf("scheduler.VerifyHFTGate: %w: passphrase mismatch", ErrHFTLocked)
	}
	return nil
}
