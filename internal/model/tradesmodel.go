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

var _ TradesModel = (*customTradesModel)(nil)

const (
	tradesTable = "public.trades"
	tradesRows  = "id, order_id, instrument, direction, amount, payout_percent, duration_seconds, status, profit_loss, balance_after, opened_at, created_at"

	cacheQxbotTradesOrderIdPrefix = "cache:qxbot:trades:orderId:"
)

type (
	// TradesModel persists submitted orders and their settlement.
	TradesModel interface {
		Insert(ctx context.Context, data *Trades) (sql.Result, error)
		FindOneByOrderId(ctx context.Context, orderId string) (*Trades, error)
		SettleByOrderId(ctx context.Context, orderId, status string, profitLoss float64) error
		Recent(ctx context.Context, limit int) ([]Trades, error)
	}

	defaultTradesModel struct {
		sqlc.CachedConn
		table string
	}

	customTradesModel struct {
		*defaultTradesModel
	}

	// Trades maps one row of the trades table.
	Trades struct {
		Id              int64           `db:"id"`
		OrderId         string          `db:"order_id"`
		Instrument      string          `db:"instrument"`
		Direction       string          `db:"direction"`
		Amount          float64         `db:"amount"`
		PayoutPercent   sql.NullFloat64 `db:"payout_percent"`
		DurationSeconds int64           `db:"duration_seconds"`
		Status          string          `db:"status"`
		ProfitLoss      sql.NullFloat64 `db:"profit_loss"`
		BalanceAfter    sql.NullFloat64 `db:"balance_after"`
		OpenedAt        time.Time       `db:"opened_at"`
		CreatedAt       time.Time       `db:"created_at"`
	}
)

// NewTradesModel returns a model for the trades table.
func NewTradesModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) TradesModel {
	return &customTradesModel{
		defaultTradesModel: &defaultTradesModel{
			CachedConn: sqlc.NewConn(conn, c, opts...),
			table:      tradesTable,
		},
	}
}

func (m *defaultTradesModel) Insert(ctx context.Context, data *Trades) (sql.Result, error) {
	key := fmt.Sprintf("%s%v", cacheQxbotTradesOrderIdPrefix, data.OrderId)
	return m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		query := fmt.Sprintf(`INSERT INTO %s
(order_id, instrument, direction, amount, payout_percent, duration_seconds, status, profit_loss, balance_after, opened_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, m.table)
		return conn.ExecCtx(ctx, query,
			data.OrderId, data.Instrument, data.Direction, data.Amount,
			data.PayoutPercent, data.DurationSeconds, data.Status,
			data.ProfitLoss, data.BalanceAfter, data.OpenedAt)
	}, key)
}

func (m *defaultTradesModel) FindOneByOrderId(ctx context.Context, orderId string) (*Trades, error) {
	key := fmt.Sprintf("%s%v", cacheQxbotTradesOrderIdPrefix, orderId)
	var resp Trades
	err := m.QueryRowCtx(ctx, &resp, key, func(ctx context.Context, conn sqlx.SqlConn, v any) error {
		query := fmt.Sprintf("SELECT %s FROM %s WHERE order_id = $1 LIMIT 1", tradesRows, m.table)
		return conn.QueryRowCtx(ctx, v, query, orderId)
	})
	switch err {
	case nil:
		return &resp, nil
	case sqlc.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// SettleByOrderId records the terminal outcome of a tracked order.
func (m *defaultTradesModel) SettleByOrderId(ctx context.Context, orderId, status string, profitLoss float64) error {
	key := fmt.Sprintf("%s%v", cacheQxbotTradesOrderIdPrefix, orderId)
	_, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		query := fmt.Sprintf("UPDATE %s SET status = $1, profit_loss = $2 WHERE order_id = $3", m.table)
		return conn.ExecCtx(ctx, query, status, profitLoss, orderId)
	}, key)
	return err
}

// Recent returns the latest trades ordered by open time descending. Limit
// defaults to 100 when non-positive.
func (m *defaultTradesModel) Recent(ctx context.Context, limit int) ([]Trades, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY opened_at DESC LIMIT $1", tradesRows, m.table)
	var rows []Trades
	if err := m.QueryRowsNoCacheCtx(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("trades.Recent query: %w", err)
	}
	return rows, nil
}
