package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// parentWorkRow is the parent_works table
type parentWorkRow struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"index;not null"`
	Kind        string `gorm:"not null"`
	Status      string `gorm:"not null"`
	ProgressPct int
	Stats       string `gorm:"type:jsonb;not null"`
	Payload     string `gorm:"type:jsonb;not null"`
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (parentWorkRow) TableName() string { return "parent_works" }

// verdictRow is the verdicts table; (parent_work_id, claim_hash) is unique
type verdictRow struct {
	ID               string `gorm:"primaryKey"`
	ParentWorkID     string `gorm:"not null;uniqueIndex:idx_verdict_claim,priority:1"`
	ClaimID          string `gorm:"not null"`
	ClaimHash        string `gorm:"not null;uniqueIndex:idx_verdict_claim,priority:2"`
	ClaimText        string `gorm:"not null"`
	ClaimContext     string
	OriginOffsetMs   int64  `gorm:"index"`
	Label            string `gorm:"not null"`
	Confidence       int
	Explanation      string
	Perspectives     string `gorm:"type:jsonb;not null"`
	Sources          string `gorm:"type:jsonb;not null"`
	IsFlagged        bool
	ProcessingTimeMs int64
	CreatedAt        time.Time
}

func (verdictRow) TableName() string { return "verdicts" }

// verdictUpdateColumns are overwritten when a claim is re-verified
var verdictUpdateColumns = []string{
	"claim_text", "claim_context", "origin_offset_ms", "label", "confidence",
	"explanation", "perspectives", "sources", "is_flagged", "processing_time_ms",
}

// Postgres is a Store backed by PostgreSQL through gorm
type Postgres struct {
	db *gorm.DB
}

// NewPostgres connects to dsn and migrates the schema
func NewPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := db.AutoMigrate(&parentWorkRow{}, &verdictRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) CreateParentWork(ctx context.Context, w *model.ParentWork) error {
	row, err := toParentWorkRow(w)
	if err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("parent work %s: %w", w.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("inserting parent work: %w", err)
	}
	return nil
}

func (p *Postgres) LoadParentWork(ctx context.Context, id string) (*model.ParentWork, error) {
	var row parentWorkRow
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying parent work: %w", err)
	}
	return fromParentWorkRow(row)
}

func (p *Postgres) SaveParentWork(ctx context.Context, w *model.ParentWork) error {
	row, err := toParentWorkRow(w)
	if err != nil {
		return err
	}
	return p.updates(ctx, w.ID, map[string]any{
		"status":       row.Status,
		"progress_pct": row.ProgressPct,
		"stats":        row.Stats,
		"payload":      row.Payload,
		"error":        row.Error,
	})
}

func (p *Postgres) SaveParentWorkStatus(ctx context.Context, id string, status model.Status, progressPct int, errMsg string) error {
	return p.updates(ctx, id, map[string]any{
		"status":       string(status),
		"progress_pct": model.Clamp(progressPct, 0, 100),
		"error":        errMsg,
	})
}

func (p *Postgres) SaveParentWorkStats(ctx context.Context, id string, stats model.Stats) error {
	data, err := encodeJSON(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return p.updates(ctx, id, map[string]any{"stats": data})
}

func (p *Postgres) updates(ctx context.Context, id string, values map[string]any) error {
	values["updated_at"] = timeNow().UTC()
	res := p.db.WithContext(ctx).Model(&parentWorkRow{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("updating parent work: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("parent work %s: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) SaveVerdict(ctx context.Context, v model.Verdict) error {
	row, err := toVerdictRow(v)
	if err != nil {
		return err
	}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "parent_work_id"}, {Name: "claim_hash"}},
		DoUpdates: clause.AssignmentColumns(verdictUpdateColumns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting verdict: %w", err)
	}
	return nil
}

func (p *Postgres) ListVerdicts(ctx context.Context, parentWorkID string) ([]model.Verdict, error) {
	var rows []verdictRow
	err := p.db.WithContext(ctx).
		Where("parent_work_id = ?", parentWorkID).
		Order("origin_offset_ms, created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying verdicts: %w", err)
	}

	out := make([]model.Verdict, 0, len(rows))
	for _, row := range rows {
		v, err := fromVerdictRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Close closes the underlying connection pool
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toParentWorkRow(w *model.ParentWork) (parentWorkRow, error) {
	if err := w.Validate(); err != nil {
		return parentWorkRow{}, err
	}
	stats, err := encodeJSON(w.Stats)
	if err != nil {
		return parentWorkRow{}, fmt.Errorf("encode stats: %w", err)
	}
	payload, err := encodePayload(w)
	if err != nil {
		return parentWorkRow{}, err
	}
	return parentWorkRow{
		ID:          w.ID,
		OwnerID:     w.OwnerID,
		Kind:        string(w.Kind),
		Status:      string(w.Status),
		ProgressPct: w.ProgressPct,
		Stats:       stats,
		Payload:     payload,
		Error:       w.Error,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}, nil
}

func fromParentWorkRow(row parentWorkRow) (*model.ParentWork, error) {
	w := &model.ParentWork{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Kind:        model.WorkKind(row.Kind),
		Status:      model.Status(row.Status),
		ProgressPct: row.ProgressPct,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Stats), &w.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if err := decodePayload(row.Payload, w); err != nil {
		return nil, err
	}
	return w, nil
}

func toVerdictRow(v model.Verdict) (verdictRow, error) {
	perspectives, err := encodeJSON(v.Perspectives)
	if err != nil {
		return verdictRow{}, fmt.Errorf("encode perspectives: %w", err)
	}
	sources, err := encodeJSON(v.Sources)
	if err != nil {
		return verdictRow{}, fmt.Errorf("encode sources: %w", err)
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = timeNow().UTC()
	}
	return verdictRow{
		ID:               v.ID,
		ParentWorkID:     v.ParentWorkID,
		ClaimID:          v.ClaimID,
		ClaimHash:        v.ClaimHash,
		ClaimText:        v.ClaimText,
		ClaimContext:     v.ClaimContext,
		OriginOffsetMs:   v.OriginOffsetMs,
		Label:            string(v.Label),
		Confidence:       v.Confidence,
		Explanation:      v.Explanation,
		Perspectives:     perspectives,
		Sources:          sources,
		IsFlagged:        v.IsFlagged,
		ProcessingTimeMs: v.ProcessingTimeMs,
		CreatedAt:        created,
	}, nil
}

func fromVerdictRow(row verdictRow) (model.Verdict, error) {
	v := model.Verdict{
		ID:               row.ID,
		ParentWorkID:     row.ParentWorkID,
		ClaimID:          row.ClaimID,
		ClaimHash:        row.ClaimHash,
		ClaimText:        row.ClaimText,
		ClaimContext:     row.ClaimContext,
		OriginOffsetMs:   row.OriginOffsetMs,
		Label:            model.Label(row.Label),
		Confidence:       row.Confidence,
		Explanation:      row.Explanation,
		IsFlagged:        row.IsFlagged,
		ProcessingTimeMs: row.ProcessingTimeMs,
		CreatedAt:        row.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Perspectives), &v.Perspectives); err != nil {
		return model.Verdict{}, fmt.Errorf("decode perspectives: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Sources), &v.Sources); err != nil {
		return model.Verdict{}, fmt.Errorf("decode sources: %w", err)
	}
	return v, nil
}
