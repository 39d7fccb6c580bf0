package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sentrix/internal/risk"
	"sentrix/internal/types"

	_ "modernc.org/sqlite"
)

// HistoryStore 将熔断器的交易、快照与状态切换写入 SQLite，重启后可回放。
type HistoryStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ risk.HistoryStore = (*HistoryStore)(nil)

// Open 初始化 SQLite 存储。
func Open(path string) (*HistoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("risk history path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryStore{db: db, path: path}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS risk_trades (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT,
			ts INTEGER NOT NULL,
			symbol TEXT,
			action TEXT,
			size_usd REAL,
			success INTEGER,
			tx_hash TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_trades_ts ON risk_trades(ts DESC);`,
		`CREATE TABLE IF NOT EXISTS risk_snapshots (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			value_usd REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_snapshots_ts ON risk_snapshots(ts);`,
		`CREATE TABLE IF NOT EXISTS risk_breaker_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT,
			detail TEXT,
			reset_at INTEGER,
			auto INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("risk history schema: %w", err)
		}
	}
	return nil
}

func (s *HistoryStore) conn() (*sql.DB, error) {
	if s == nil {
		return nil, fmt.Errorf("risk history store not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("risk history store closed")
	}
	return s.db, nil
}

func (s *HistoryStore) SaveTrade(ctx context.Context, rec risk.TradeRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO risk_trades (id, ts, symbol, action, size_usd, success, tx_hash) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixMilli(), rec.Symbol, string(rec.Action), rec.SizeUSD, boolToInt(rec.Success), rec.TxHash)
	return err
}

func (s *HistoryStore) SaveSnapshot(ctx context.Context, snap risk.PortfolioSnapshot) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO risk_snapshots (ts, value_usd) VALUES (?, ?)`,
		snap.Timestamp.UnixMilli(), snap.ValueUSD)
	return err
}

func (s *HistoryStore) SaveEvent(ctx context.Context, ev risk.BreakerEvent) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	var resetAt int64
	if !ev.ResetAt.IsZero() {
		resetAt = ev.ResetAt.UnixMilli()
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO risk_breaker_events (ts, kind, reason, detail, reset_at, auto) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.At.UnixMilli(), string(ev.Kind), string(ev.Reason), ev.Detail, resetAt, boolToInt(ev.Auto))
	return err
}

// LoadTrades returns the newest limit trades, oldest first.
func (s *HistoryStore) LoadTrades(ctx context.Context, limit int) ([]risk.TradeRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, ts, symbol, action, size_usd, success, tx_hash FROM risk_trades ORDER BY ts DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []risk.TradeRecord
	for rows.Next() {
		var (
			rec     risk.TradeRecord
			ts      int64
			action  string
			success int
			id, sym sql.NullString
			tx      sql.NullString
		)
		if err := rows.Scan(&id, &ts, &sym, &action, &rec.SizeUSD, &success, &tx); err != nil {
			return nil, err
		}
		rec.ID = id.String
		rec.Symbol = sym.String
		rec.TxHash = tx.String
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.Action = types.Action(action)
		rec.Success = success != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LoadSnapshots returns snapshots taken at or after since, oldest first.
func (s *HistoryStore) LoadSnapshots(ctx context.Context, since time.Time) ([]risk.PortfolioSnapshot, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT ts, value_usd FROM risk_snapshots WHERE ts >= ? ORDER BY ts ASC, seq ASC`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []risk.PortfolioSnapshot
	for rows.Next() {
		var ts int64
		var snap risk.PortfolioSnapshot
		if err := rows.Scan(&ts, &snap.ValueUSD); err != nil {
			return nil, err
		}
		snap.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Events 返回最近的熔断事件，新的在前。
func (s *HistoryStore) Events(ctx context.Context, limit int) ([]risk.BreakerEvent, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT ts, kind, reason, detail, reset_at, auto FROM risk_breaker_events ORDER BY ts DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []risk.BreakerEvent
	for rows.Next() {
		var (
			ts, resetAt    int64
			kind           string
			reason, detail sql.NullString
			auto           int
		)
		if err := rows.Scan(&ts, &kind, &reason, &detail, &resetAt, &auto); err != nil {
			return nil, err
		}
		ev := risk.BreakerEvent{
			Kind:   risk.EventKind(kind),
			Reason: risk.TriggerReason(reason.String),
			Detail: detail.String,
			At:     time.UnixMilli(ts).UTC(),
			Auto:   auto != 0,
		}
		if resetAt > 0 {
			ev.ResetAt = time.UnixMilli(resetAt).UTC()
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune 删除 before 之前的快照，交易只保留最近 keepTrades 条。
func (s *HistoryStore) Prune(ctx context.Context, before time.Time, keepTrades int) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM risk_snapshots WHERE ts < ?`, before.UnixMilli()); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if keepTrades > 0 {
		if _, err := db.ExecContext(ctx,
			`DELETE FROM risk_trades WHERE seq NOT IN (SELECT seq FROM risk_trades ORDER BY ts DESC, seq DESC LIMIT ?)`, keepTrades); err != nil {
			return fmt.Errorf("prune trades: %w", err)
		}
	}
	return nil
}

// Close 关闭底层 DB。
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
