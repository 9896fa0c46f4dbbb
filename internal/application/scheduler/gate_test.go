package scheduler_test

import (
	"testing"

	"github.com/alejandrodnm/smcbot/internal/application/lifecycle"
	"github.com/alejandrodnm/smcbot/internal/application/scheduler"
	"github.com/alejandrodnm/smcbot/internal/application/state"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashOf(t *testing.T, pass string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestVerifyHFTGate(t *testing.T) {
	hash := hashOf(t, "correct horse")

	cases := []struct {
		name string
		gate scheduler.HFTGate
		ok   bool
	}{
		{"unlocked", scheduler.HFTGate{Enabled: true, PassphraseHash: hash, Passphrase: "correct horse"}, true},
		{"flag off", scheduler.HFTGate{Enabled: false, PassphraseHash: hash, Passphrase: "correct horse"}, false},
		{"wrong passphrase", scheduler.HFTGate{Enabled: true, PassphraseHash: hash, Passphrase: "battery staple"}, false},
		{"no passphrase", scheduler.HFTGate{Enabled: true, PassphraseHash: hash}, false},
		{"no hash", scheduler.HFTGate{Enabled: true, Passphrase: "correct horse"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := scheduler.VerifyHFTGate(tc.gate)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, scheduler.ErrHFTLocked)
		})
	}
}

func TestNew_HFTModeRequiresGate(t *testing.T) {
	deps := scheduler.Deps{
		Market:  newFakeMarket(),
		Account: &fakeAccount{},
		Orders:  lifecycle.New(nil, nil, nil, nil, nil, lifecycle.Config{}),
		State:   state.NewStore(domain.ModeHFT, domain.ExecDryRun),
	}
	cfg := scheduler.Config{
		Symbols:      []string{"EURUSD"},
		Profile:      domain.DefaultProfile(domain.ModeHFT),
		RiskFraction: 0.01,
	}

	_, err := scheduler.New(cfg, deps)
	assert.ErrorIs(t, err, scheduler.ErrHFTLocked)

	cfg.HFT = scheduler.HFTGate{Enabled: true, PassphraseHash: hashOf(t, "go fast"), Passphrase: "go fast"}
	s, err := scheduler.New(cfg, deps)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
