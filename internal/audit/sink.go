package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/cabinet-scheduling/pkg/logging"
)

// Entry is one authorization decision. Entries are append-only and never
// read back by this service; they exist as tamper evidence for cross-tenant
// access attempts.
type Entry struct {
	Timestamp time.Time
	ActorID   string
	Role      string
	Resource  string
	Operation string
	CabinetID uuid.UUID
	Allowed   bool
	Reason    string
}

// Sink records authorization decisions.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// LogSink writes entries to the structured log. Used in dev and as the
// fallback when no database sink is wired.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger.Component("audit")}
}

func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.logger.Info("access decision",
		"actor_id", e.ActorID,
		"role", e.Role,
		"resource", e.Resource,
		"operation", e.Operation,
		"cabinet_id", e.CabinetID,
		"allowed", e.Allowed,
		"reason", e.Reason,
	)
	return nil
}
