package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSink appends entries to the access_audit_log table.
type PgSink struct {
	pool *pgxpool.Pool
}

func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

func (s *PgSink) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var cabinetID any
	if e.CabinetID != uuid.Nil {
		cabinetID = e.CabinetID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_audit_log (ts, actor_id, role, resource, operation, cabinet_id, allowed, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.Timestamp, e.ActorID, e.Role, e.Resource, e.Operation, cabinetID, e.Allowed, e.Reason)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
