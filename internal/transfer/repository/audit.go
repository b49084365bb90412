package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/retailops/retailops-backend/pkg/database"
)

// AuditEntry is one append-only audit trail record. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID              string    `db:"id" json:"id"`
	EntityType      string    `db:"entity_type" json:"entity_type"`
	EntityID        string    `db:"entity_id" json:"entity_id"`
	Action          string    `db:"action" json:"action"`
	Metadata        *string   `db:"metadata" json:"metadata,omitempty"`
	PerformedBy     *string   `db:"performed_by" json:"performed_by,omitempty"`
	PerformedByName *string   `db:"performed_by_name" json:"performed_by_name,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// AuditRepository handles audit trail persistence. All operations are
// append-only: no UPDATE or DELETE is permitted.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends a new audit trail entry
func (r *AuditRepository) Create(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_trail (
			id, entity_type, entity_id, action, metadata,
			performed_by, performed_by_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.Metadata, entry.PerformedBy, entry.PerformedByName,
	).Scan(&entry.CreatedAt)
}

// ListByEntity lists audit entries for a specific entity with pagination
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, page, perPage int) ([]*AuditEntry, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM audit_trail WHERE entity_type = $1 AND entity_id = $2`
	if err := r.db.GetContext(ctx, &total, countQuery, entityType, entityID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `
		SELECT id, entity_type, entity_id, action, metadata,
		       performed_by, performed_by_name, created_at
		FROM audit_trail
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	var entries []*AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, entityType, entityID, perPage, offset); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
