package postgres

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/docuease/copilot/internal/audit"
)

// AuditRepository implements audit.Store with PostgreSQL.
// Append-only: no Update or Delete methods exist on this type.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a single audit entry. This is the only write method;
// immutability is enforced at the interface level.
func (r *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	model := toAuditModel(entry)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	entry.ID = model.ID
	return nil
}

// Query returns audit entries matching the filter, newest first.
// Limit defaults to 100.
func (r *AuditRepository) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := r.db.WithContext(ctx).
		Order("requested_at DESC").
		Limit(limit)

	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.ActorRole != "" {
		q = q.Where("actor_role = ?", f.ActorRole)
	}
	if f.ResultStatus != "" {
		q = q.Where("result_status = ?", f.ResultStatus)
	}
	if !f.From.IsZero() {
		q = q.Where("requested_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("requested_at <= ?", f.To)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(actor_email) LIKE ? OR LOWER(action) LIKE ?", like, like)
	}

	var models []AuditEntryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}

	entries := make([]audit.Entry, len(models))
	for i := range models {
		entries[i] = toAuditDomain(&models[i])
	}
	return entries, nil
}

// compile-time interface check
var _ audit.Store = (*AuditRepository)(nil)
