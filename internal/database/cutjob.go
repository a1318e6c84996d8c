package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/smartcut/internal/models"
	"gorm.io/gorm"
)

// CutJobStatus is the lifecycle state of a persisted cut job record.
type CutJobStatus string

const (
	CutJobStatusPending   CutJobStatus = "pending"
	CutJobStatusRunning   CutJobStatus = "running"
	CutJobStatusCompleted CutJobStatus = "completed"
	CutJobStatusFailed    CutJobStatus = "failed"
	CutJobStatusCanceled  CutJobStatus = "canceled"
)

// CutJobRecord is the durable history of one Smart Cut job, persisted so a
// restarted server can answer "what happened to job X" after the in-memory
// registry entry is gone.
type CutJobRecord struct {
	models.BaseModel

	VideoPath  string `gorm:"size:1024"`
	OutputPath string `gorm:"size:1024"`
	KeepList   string `gorm:"type:text"` // JSON-encoded cutplan.KeepList

	Status   CutJobStatus `gorm:"size:16;index"`
	Segments int
	Error    string `gorm:"type:text"`

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TableName overrides GORM's pluralization so the table matches the
// record name rather than a pluralized guess.
func (CutJobRecord) TableName() string {
	return "cut_jobs"
}

// Migrate creates or updates the cut job history table.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.WithContext(ctx).AutoMigrate(&CutJobRecord{}); err != nil {
		return fmt.Errorf("migrating cut job table: %w", err)
	}
	return nil
}

// CutJobRepository persists cut job history.
type CutJobRepository struct {
	db *DB
}

// NewCutJobRepository creates a repository backed by db.
func NewCutJobRepository(db *DB) *CutJobRepository {
	return &CutJobRepository{db: db}
}

// Create inserts a new job record.
func (r *CutJobRepository) Create(ctx context.Context, rec *CutJobRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating cut job record: %w", err)
	}
	return nil
}

// Update saves changes to an existing job record.
func (r *CutJobRepository) Update(ctx context.Context, rec *CutJobRecord) error {
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("updating cut job record: %w", err)
	}
	return nil
}

// GetByID returns the job record with the given ID.
func (r *CutJobRepository) GetByID(ctx context.Context, id models.ULID) (*CutJobRecord, error) {
	var rec CutJobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("cut job %s: %w", id, err)
		}
		return nil, fmt.Errorf("getting cut job record: %w", err)
	}
	return &rec, nil
}

// List returns job records ordered newest first, up to limit (0 means no limit).
func (r *CutJobRepository) List(ctx context.Context, limit int) ([]CutJobRecord, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []CutJobRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing cut job records: %w", err)
	}
	return recs, nil
}
