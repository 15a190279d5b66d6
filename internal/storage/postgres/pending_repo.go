package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuease/copilot/internal/pending"
)

// PendingRepository implements pending.Store with PostgreSQL.
// ValidateAndConsume uses a conditional update keyed on status = 'pending'
// so exactly one concurrent confirmation per id can succeed.
type PendingRepository struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewPendingRepository creates a PendingRepository with the given TTL.
// A zero ttl falls back to pending.DefaultTTL.
func NewPendingRepository(db *gorm.DB, ttl time.Duration) *PendingRepository {
	if ttl <= 0 {
		ttl = pending.DefaultTTL
	}
	return &PendingRepository{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Test hook.
func (r *PendingRepository) WithClock(now func() time.Time) *PendingRepository {
	r.now = now
	return r
}

func (r *PendingRepository) Create(ctx context.Context, req *pending.CreateRequest) (*pending.Operation, error) {
	now := r.now()
	op := &pending.Operation{
		ID:                uuid.New().String(),
		OperationType:     req.OperationType,
		ToolName:          req.ToolName,
		ActorID:           req.ActorID,
		PatientID:         req.PatientID,
		Args:              req.Args,
		RiskLevel:         req.RiskLevel,
		EstimatedDuration: req.EstimatedDuration,
		Status:            pending.StatusPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(r.ttl),
	}

	model := toPendingModel(op)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating pending operation: %w", err)
	}
	return op, nil
}

func (r *PendingRepository) Get(ctx context.Context, id string) (*pending.Operation, error) {
	var model PendingOperationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pending.ErrNotFound
		}
		return nil, fmt.Errorf("getting pending operation: %w", err)
	}

	// Lazy expiry on access.
	if model.Status == pending.StatusPending.String() && r.now().After(model.ExpiresAt) {
		r.db.WithContext(ctx).Model(&model).Update("status", pending.StatusExpired.String())
		model.Status = pending.StatusExpired.String()
	}

	return toPendingDomain(&model), nil
}

func (r *PendingRepository) ValidateAndConsume(ctx context.Context, id, actorID string) (*pending.Operation, error) {
	var model PendingOperationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pending.ErrNotFound
		}
		return nil, fmt.Errorf("getting pending operation: %w", err)
	}

	if model.ActorID != actorID {
		return nil, pending.ErrActorMismatch
	}
	if model.Status != pending.StatusPending.String() {
		return nil, pending.ErrAlreadyResolved
	}

	now := r.now()
	if now.After(model.ExpiresAt) {
		r.db.WithContext(ctx).Model(&model).Update("status", pending.StatusExpired.String())
		return nil, pending.ErrExpired
	}

	// Compare-and-swap: only a row still in 'pending' can be approved.
	result := r.db.WithContext(ctx).
		Model(&PendingOperationModel{}).
		Where("id = ? AND status = ?", id, pending.StatusPending.String()).
		Updates(map[string]any{
			"status":       pending.StatusApproved.String(),
			"confirmed_by": actorID,
			"confirmed_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("consuming pending operation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race to a concurrent confirmation.
		return nil, pending.ErrAlreadyResolved
	}

	model.Status = pending.StatusApproved.String()
	model.ConfirmedBy = actorID
	model.ConfirmedAt = &now
	return toPendingDomain(&model), nil
}

func (r *PendingRepository) Reject(ctx context.Context, id, actorID string) error {
	var model PendingOperationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pending.ErrNotFound
		}
		return fmt.Errorf("getting pending operation: %w", err)
	}

	if model.ActorID != actorID {
		return pending.ErrActorMismatch
	}
	if model.Status != pending.StatusPending.String() {
		return pending.ErrAlreadyResolved
	}

	now := r.now()
	result := r.db.WithContext(ctx).
		Model(&PendingOperationModel{}).
		Where("id = ? AND status = ?", id, pending.StatusPending.String()).
		Updates(map[string]any{
			"status":       pending.StatusRejected.String(),
			"confirmed_by": actorID,
			"confirmed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("rejecting pending operation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return pending.ErrAlreadyResolved
	}
	return nil
}

func (r *PendingRepository) ExpireOld(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&PendingOperationModel{}).
		Where("status = ? AND expires_at < ?", pending.StatusPending.String(), r.now()).
		Update("status", pending.StatusExpired.String()).Error
}

func (r *PendingRepository) DeleteResolved(ctx context.Context, olderThan time.Duration) error {
	cutoff := r.now().Add(-olderThan)
	return r.db.WithContext(ctx).
		Where("status != ? AND created_at < ?", pending.StatusPending.String(), cutoff).
		Delete(&PendingOperationModel{}).Error
}

// compile-time interface check
var _ pending.Store = (*PendingRepository)(nil)
