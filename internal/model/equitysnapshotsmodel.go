package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ EquitySnapshotsModel = (*customEquitySnapshotsModel)(nil)

const (
	equitySnapshotsTable = "public.equity_snapshots"
	equitySnapshotsRows  = "id, balance, daily_loss, risk_percent, consecutive_wins, consecutive_losses, recorded_at"
)

type (
	// EquitySnapshotsModel persists per-settlement equity observations.
	EquitySnapshotsModel interface {
		Insert(ctx context.Context, data *EquitySnapshots) (sql.Result, error)
		Recent(ctx context.Context, limit int) ([]EquitySnapshots, error)
	}

	defaultEquitySnapshotsModel struct {
		sqlc.CachedConn
		table string
	}

	customEquitySnapshotsModel struct {
		*defaultEquitySnapshotsModel
	}

	// EquitySnapshots maps one row of the equity_snapshots table.
	EquitySnapshots struct {
		Id                int64           `db:"id"`
		Balance           sql.NullFloat64 `db:"balance"`
		DailyLoss         float64         `db:"daily_loss"`
		RiskPercent       float64         `db:"risk_percent"`
		ConsecutiveWins   int64           `db:"consecutive_wins"`
		ConsecutiveLosses int64           `db:"consecutive_losses"`
		RecordedAt        time.Time       `db:"recorded_at"`
	}
)

// NewEquitySnapshotsModel returns a model for the equity_snapshots table.
func NewEquitySnapshotsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) EquitySnapshotsModel {
	return &customEquitySnapshotsModel{
		defaultEquitySnapshotsModel: &defaultEquitySnapshotsModel{
			CachedConn: sqlc.NewConn(conn, c, opts...),
			table:      equitySnapshotsTable,
		},
	}
}

func (m *defaultEquitySnapshotsModel) Insert(ctx context.Context, data *EquitySnapshots) (sql.Result, error) {
	query := fmt.Sprintf(`INSERT INTO %s
(balance, daily_loss, risk_percent, consecutive_wins, consecutive_losses, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)`, m.table)
	return m.ExecNoCacheCtx(ctx, query,
		data.Balance, data.DailyLoss, data.RiskPercent,
		data.ConsecutiveWins, data.ConsecutiveLosses, data.RecordedAt)
}

// Recent returns the latest snapshots ordered by recording time descending.
// Limit defaults to 100 when non-positive.
func (m *defaultEquitySnapshotsModel) Recent(ctx context.Context, limit int) ([]EquitySnapshots, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY recorded_at DESC LIMIT $1", equitySnapshotsRows, m.table)
	var rows []EquitySnapshots
	if err := m.QueryRowsNoCacheCtx(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("equitySnapshots.Recent query: %w", err)
	}
	return rows, nil
}
