package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrPredictionNotFound = errors.New("prediction not found")

type predictionModel struct {
	ID               string         `gorm:"column:id;primaryKey"`
	Symbol           string         `gorm:"column:symbol;index"`
	Strategy         string         `gorm:"column:strategy"`
	Action           string         `gorm:"column:action"`
	Score            float64        `gorm:"column:score"`
	Confidence       float64        `gorm:"column:confidence"`
	Recommendation   string         `gorm:"column:recommendation"`
	SizePercent      float64        `gorm:"column:size_percent"`
	PriceAtExecution float64        `gorm:"column:price_at_execution"`
	TxHash           string         `gorm:"column:tx_hash"`
	SignalJSON       datatypes.JSON `gorm:"column:signal_json;type:TEXT"`
	IntentJSON       datatypes.JSON `gorm:"column:intent_json;type:TEXT"`
	OutcomePrice     *float64       `gorm:"column:outcome_price"`
	OutcomeAt        *int64         `gorm:"column:outcome_at"`
	ReturnPercent    *float64       `gorm:"column:return_percent"`
	CreatedAt        int64          `gorm:"column:created_at;index"`
}

func (predictionModel) TableName() string { return "predictions" }

// GormTracker 用 GORM + SQLite 保存预测记录。
type GormTracker struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Tracker = (*GormTracker)(nil)

func NewGormTracker(path string) (*GormTracker, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("tracker: sqlite path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&predictionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormTracker{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (t *GormTracker) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (t *GormTracker) Record(ctx context.Context, p Prediction) (string, error) {
	if t == nil || t.db == nil {
		return "", fmt.Errorf("tracker not initialised")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.now()
	}
	sig, err := json.Marshal(p.Signal)
	if err != nil {
		return "", fmt.Errorf("encode signal: %w", err)
	}
	intent, err := json.Marshal(p.Intent)
	if err != nil {
		return "", fmt.Errorf("encode intent: %w", err)
	}
	m := predictionModel{
		ID:               p.ID,
		Symbol:           strings.ToUpper(p.Symbol),
		Strategy:         p.Strategy,
		Action:           string(p.Intent.Action),
		Score:            p.Signal.OverallScore,
		Confidence:       p.Signal.OverallConfidence,
		Recommendation:   string(p.Signal.Recommendation),
		SizePercent:      p.Intent.SuggestedSizePercent,
		PriceAtExecution: p.PriceAtExecution,
		TxHash:           p.TxHash,
		SignalJSON:       datatypes.JSON(sig),
		IntentJSON:       datatypes.JSON(intent),
		CreatedAt:        p.CreatedAt.UnixMilli(),
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", fmt.Errorf("record prediction: %w", err)
	}
	return p.ID, nil
}

func (t *GormTracker) Get(ctx context.Context, id string) (Prediction, error) {
	var m predictionModel
	err := t.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Prediction{}, fmt.Errorf("%w: %s", ErrPredictionNotFound, id)
	}
	if err != nil {
		return Prediction{}, err
	}
	return fromModel(m)
}

// Recent 返回最近的预测，symbol 为空时不过滤。
func (t *GormTracker) Recent(ctx context.Context, symbol string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	q := t.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if s := strings.TrimSpace(symbol); s != "" {
		q = q.Where("symbol = ?", strings.ToUpper(s))
	}
	var rows []predictionModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Prediction, 0, len(rows))
	for _, m := range rows {
		p, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Resolve 写入事后价格与方向化收益。
func (t *GormTracker) Resolve(ctx context.Context, id string, price float64, at time.Time) (Prediction, error) {
	p, err := t.Get(ctx, id)
	if err != nil {
		return Prediction{}, err
	}
	ret := ReturnPercent(p.Intent.Action, p.PriceAtExecution, price)
	ts := at.UnixMilli()
	err = t.db.WithContext(ctx).Model(&predictionModel{}).Where("id = ?", id).Updates(map[string]any{
		"outcome_price":  price,
		"outcome_at":     ts,
		"return_percent": ret,
	}).Error
	if err != nil {
		return Prediction{}, fmt.Errorf("resolve prediction: %w", err)
	}
	p.OutcomePrice, p.OutcomeAt, p.ReturnPercent, p.Resolved = price, time.UnixMilli(ts).UTC(), ret, true
	return p, nil
}

func fromModel(m predictionModel) (Prediction, error) {
	p := Prediction{
		ID:               m.ID,
		Symbol:           m.Symbol,
		Strategy:         m.Strategy,
		PriceAtExecution: m.PriceAtExecution,
		TxHash:           m.TxHash,
		CreatedAt:        time.UnixMilli(m.CreatedAt).UTC(),
	}
	if len(m.SignalJSON) > 0 {
		if err := json.Unmarshal(m.SignalJSON, &p.Signal); err != nil {
			return Prediction{}, fmt.Errorf("decode signal: %w", err)
		}
	}
	if len(m.IntentJSON) > 0 {
		if err := json.Unmarshal(m.IntentJSON, &p.Intent); err != nil {
			return Prediction{}, fmt.Errorf("decode intent: %w", err)
		}
	}
	if m.OutcomePrice != nil {
		p.OutcomePrice = *m.OutcomePrice
		p.Resolved = true
	}
	if m.OutcomeAt != nil {
		p.OutcomeAt = time.UnixMilli(*m.OutcomeAt).UTC()
	}
	if m.ReturnPercent != nil {
		p.ReturnPercent = *m.ReturnPercent
	}
	return p, nil
}
