package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// daySnapshot is the persisted slice of risk state: the parts that must
// survive a process restart inside one accounting day. Open orders are not
// persisted; they cannot be reconciled across a lost session.
type daySnapshot struct {
	DailyLoss           float64   `msgpack:"daily_loss"`
	InitialDailyBalance float64   `msgpack:"initial_daily_balance"`
	LastResetAt         time.Time `msgpack:"last_reset_at"`
	ConsecutiveWins     int       `msgpack:"consecutive_wins"`
	ConsecutiveLosses   int       `msgpack:"consecutive_losses"`
	CurrentRiskPercent  float64   `msgpack:"current_risk_percent"`
	SavedAt             time.Time `msgpack:"saved_at"`
}

// SaveDaySnapshot writes the current day accounting to path atomically, via
// a rename from a sibling temp file.
func (s *RiskState) SaveDaySnapshot(path string) error {
	snap := daySnapshot{
		DailyLoss:           s.dailyLoss,
		InitialDailyBalance: s.initialDailyBalance,
		LastResetAt:         s.lastResetAt,
		ConsecutiveWins:     s.consecutiveWins,
		ConsecutiveLosses:   s.consecutiveLosses,
		CurrentRiskPercent:  s.currentRiskPercent,
		SavedAt:             s.clock(),
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode day snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write day snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit day snapshot: %w", err)
	}
	return nil
}

// LoadDaySnapshot restores day accounting from path. A missing file is not
// an error; a snapshot whose reset falls outside the current 24h window is
// stale and discarded, so a restart after a day boundary starts fresh.
// Reports whether state was restored.
func (s *RiskState) LoadDaySnapshot(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read day snapshot: %w", err)
	}
	var snap daySnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode day snapshot: %w", err)
	}
	if snap.LastResetAt.IsZero() || s.clock().Sub(snap.LastResetAt) >= 24*time.Hour {
		return false, nil
	}
	s.dailyLoss = snap.DailyLoss
	s.initialDailyBalance = snap.InitialDailyBalance
	s.lastResetAt = snap.LastResetAt
	s.consecutiveWins = snap.ConsecutiveWins
	s.consecutiveLosses = snap.ConsecutiveLosses
	s.currentRiskPercent = snap.CurrentRiskPercent
	return true, nil
}
