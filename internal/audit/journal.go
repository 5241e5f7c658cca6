// Package audit persists session transitions and dispatch runs, and prunes
// them on a cron schedule.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/rentbell/internal/dispatch"
	"github.com/zulandar/rentbell/internal/models"
	"github.com/zulandar/rentbell/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JournalOpts holds parameters for creating a Journal.
type JournalOpts struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Journal writes the audit trail. It is a session.Observer and a
// dispatch.RunRecorder.
type Journal struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewJournal creates a Journal.
func NewJournal(opts JournalOpts) (*Journal, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("audit: db is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Journal{db: opts.DB, log: log}, nil
}

// OnTransition records t. Failures are logged; the state machine never
// waits on the journal.
func (j *Journal) OnTransition(t session.Transition) {
	row := models.SessionTransition{
		TenantID:  t.TenantID,
		FromState: t.From.String(),
		ToState:   t.To.String(),
		Trigger:   t.Trigger,
		Detail:    t.Detail,
		CreatedAt: t.At,
	}
	if err := j.db.Create(&row).Error; err != nil {
		j.log.Error("audit: record transition", zap.String("tenant", t.TenantID), zap.Error(err))
	}
}

// RecordRun stores a completed dispatch run with masked phone numbers.
func (j *Journal) RecordRun(ctx context.Context, run dispatch.Run) error {
	row := models.DispatchRun{
		ID:         run.ID,
		TenantID:   run.TenantID,
		Sent:       run.Summary.Sent,
		Failed:     run.Summary.Failed,
		Total:      run.Summary.Total,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	for i, r := range run.Results {
		row.Items = append(row.Items, models.DispatchItem{
			RunID:    run.ID,
			Position: i,
			Phone:    dispatch.MaskPhone(r.Phone),
			Name:     r.Name,
			Status:   string(r.Status),
			Error:    r.Error,
		})
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("audit: record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first, with their items. An
// empty tenantID matches every tenant.
func (j *Journal) Runs(ctx context.Context, tenantID string, limit int) ([]models.DispatchRun, error) {
	q := j.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("started_at DESC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []models.DispatchRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("audit: list runs: %w", err)
	}
	return runs, nil
}

// Transitions returns the most recent transitions for tenantID, newest first.
func (j *Journal) Transitions(ctx context.Context, tenantID string, limit int) ([]models.SessionTransition, error) {
	q := j.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.SessionTransition
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit: list transitions: %w", err)
	}
	return rows, nil
}

// Prune deletes transitions and runs older than cutoff. It returns the
// number of rows removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&models.SessionTransition{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		old := tx.Model(&models.DispatchRun{}).Select("id").Where("started_at < ?", cutoff)
		res = tx.Where("run_id IN (?)", old).Delete(&models.DispatchItem{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		res = tx.Where("started_at < ?", cutoff).Delete(&models.DispatchRun{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return removed, nil
}
