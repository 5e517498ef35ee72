package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type auditRepository struct {
	db *sqlx.DB
}

var _ core.AuditTrail = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo auditRepository) Record(ctx context.Context, entry core.AuditEntry) error {
	q := `
INSERT INTO audit_log (id, school_id, actor_id, action, object_type, object_id, detail, created_at)
VALUES (:id, :school_id, :actor_id, :action, :object_type, :object_id, :detail, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, entry); err != nil {
		return errors.Wrap(err, "inserting audit entry")
	}
	return nil
}
