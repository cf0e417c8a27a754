package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/cabinet-scheduling/internal/audit"
	"github.com/clinicore/cabinet-scheduling/pkg/logging"
)

// ErrNoCabinetResolved is returned when no cabinet was requested and the
// actor's assignments do not yield an unambiguous default.
var ErrNoCabinetResolved = errors.New("no cabinet could be resolved, specify one explicitly")

// DeniedError is the typed result of a failed authorization check. It is an
// expected business outcome, not an exception: callers translate it into a
// 403-equivalent. Every denial is audit-logged before it is returned.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "access denied: " + e.Reason
}

// CabinetScope is the tenant portion of a query filter, resolved once by the
// guard before any query layer sees it.
type CabinetScope struct {
	CabinetID  *uuid.UUID
	CabinetIDs []uuid.UUID
}

// Guard gates every read and write with tenant and role checks. Every
// decision, allow or deny, goes to the audit sink.
type Guard struct {
	sink   audit.Sink
	logger *logging.Logger
}

func NewGuard(sink audit.Sink, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{sink: sink, logger: logger.Component("access")}
}

// CanAccessCabinet reports whether the actor may touch the cabinet at all.
// Admin is always allowed; everyone else must be assigned to it.
func (g *Guard) CanAccessCabinet(ctx context.Context, actor Actor, cabinetID uuid.UUID) error {
	denied := cabinetDenied(actor, cabinetID)
	g.record(ctx, actor, ResourceCabinet, "access", cabinetID, denied)
	return asError(denied)
}

// Authorize requires cabinet access plus the "<resource>:<operation>"
// permission. One audit entry is written per call.
func (g *Guard) Authorize(ctx context.Context, actor Actor, cabinetID uuid.UUID, resource, operation string) error {
	denied := cabinetDenied(actor, cabinetID)
	if denied == nil && !actor.HasPermission(Permission(resource, operation)) {
		denied = &DeniedError{Reason: fmt.Sprintf("role %s lacks permission %s", actor.Role, Permission(resource, operation))}
	}
	g.record(ctx, actor, resource, operation, cabinetID, denied)
	return asError(denied)
}

// SanitizeScope resolves the tenant portion of a filter. Non-admin actors
// with no explicit cabinet get their assignment injected; a filter naming an
// unassigned cabinet fails closed rather than being silently narrowed.
func (g *Guard) SanitizeScope(ctx context.Context, actor Actor, scope CabinetScope) (CabinetScope, error) {
	if actor.isPrivileged() {
		return scope, nil
	}

	if scope.CabinetID != nil {
		if denied := cabinetDenied(actor, *scope.CabinetID); denied != nil {
			g.record(ctx, actor, ResourceCabinet, OpRead, *scope.CabinetID, denied)
			return CabinetScope{}, denied
		}
		return scope, nil
	}

	if len(scope.CabinetIDs) > 0 {
		for _, id := range scope.CabinetIDs {
			if denied := cabinetDenied(actor, id); denied != nil {
				g.record(ctx, actor, ResourceCabinet, OpRead, id, denied)
				return CabinetScope{}, denied
			}
		}
		return scope, nil
	}

	if len(actor.AssignedCabinets) == 0 {
		denied := &DeniedError{Reason: "actor has no cabinet assignments"}
		g.record(ctx, actor, ResourceCabinet, OpRead, uuid.Nil, denied)
		return CabinetScope{}, denied
	}

	if len(actor.AssignedCabinets) == 1 {
		id := actor.AssignedCabinets[0]
		return CabinetScope{CabinetID: &id}, nil
	}

	ids := make([]uuid.UUID, len(actor.AssignedCabinets))
	copy(ids, actor.AssignedCabinets)
	return CabinetScope{CabinetIDs: ids}, nil
}

// ResolveEffectiveCabinet picks the cabinet a write should land in. A
// requested cabinet must pass the access check; with no request and exactly
// one assignment, that assignment is the default.
func (g *Guard) ResolveEffectiveCabinet(ctx context.Context, actor Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if requested != nil {
		if denied := cabinetDenied(actor, *requested); denied != nil {
			g.record(ctx, actor, ResourceCabinet, "access", *requested, denied)
			return uuid.Nil, denied
		}
		return *requested, nil
	}

	if len(actor.AssignedCabinets) == 1 {
		return actor.AssignedCabinets[0], nil
	}

	return uuid.Nil, ErrNoCabinetResolved
}

func cabinetDenied(actor Actor, cabinetID uuid.UUID) *DeniedError {
	if actor.isPrivileged() {
		return nil
	}
	if actor.isAssigned(cabinetID) {
		return nil
	}
	return &DeniedError{Reason: fmt.Sprintf("cabinet %s is outside the actor's assignment", cabinetID)}
}

// record writes the decision to the audit sink. A sink failure never blocks
// the authorization result, but it is logged loudly.
func (g *Guard) record(ctx context.Context, actor Actor, resource, operation string, cabinetID uuid.UUID, denied *DeniedError) {
	entry := audit.Entry{
		Timestamp: time.Now().UTC(),
		ActorID:   actor.UserID,
		Role:      string(actor.Role),
		Resource:  resource,
		Operation: operation,
		CabinetID: cabinetID,
		Allowed:   denied == nil,
	}
	if denied != nil {
		entry.Reason = denied.Reason
	}

	if err := g.sink.Record(ctx, entry); err != nil {
		g.logger.Error("audit sink write failed",
			"error", err,
			"actor_id", actor.UserID,
			"resource", resource,
			"operation", operation,
		)
	}
}

func asError(denied *DeniedError) error {
	if denied == nil {
		return nil
	}
	return denied
}
