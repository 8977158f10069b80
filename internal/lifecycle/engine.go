package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"villageops/internal/audit"
	"villageops/internal/invoke"
	"villageops/internal/platform/metrics"
	"villageops/pkg/domain"
	dErrors "villageops/pkg/domain-errors"
	"villageops/pkg/platform/sentinel"
	"villageops/pkg/requestcontext"
)

// EntityStore persists lifecycle entities. Implementations must make
// UpdateIfStatus a conditional write: the row updates only when its stored
// status still equals expected, otherwise sentinel.ErrConflict.
type EntityStore interface {
	Create(ctx context.Context, e *Entity) error
	// CreateIfKeyAvailable inserts only when no entity of the same kind holds
	// the same key within the community; sentinel.ErrAlreadyUsed otherwise.
	CreateIfKeyAvailable(ctx context.Context, e *Entity) error
	FindByID(ctx context.Context, kind Kind, id domain.EntityID) (*Entity, error)
	FindByKey(ctx context.Context, kind Kind, communityID domain.CommunityID, key string) (*Entity, error)
	UpdateIfStatus(ctx context.Context, expected Status, e *Entity) error
}

// StoreTx runs fn atomically. The entity write and its audit append share the
// transaction so neither can commit without the other.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder appends audit entries. Satisfied by *audit.Service.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// noopTx runs fn directly. Used with the in-memory store, whose append and
// write are already serialized per call.
type noopTx struct{}

func (noopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Engine executes lifecycle transitions: it consults the kind's transition
// table, validates parameters, completes any remote step, then commits the
// status write and its audit entry atomically.
//
// Ordering is remote-first: the remote call must succeed before the local
// write. A clean remote failure leaves local state untouched; a timed-out
// call also commits nothing, but the remote effect is unknown and the caller
// must re-query before retrying.
type Engine struct {
	machines map[Kind]*Machine
	entities EntityStore
	audit    Recorder
	invoker  invoke.Invoker
	tx       StoreTx
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithInvoker sets the remote-procedure invoker. Without one, remote-backed
// actions fail with remote_invocation_failed.
func WithInvoker(inv invoke.Invoker) EngineOption {
	return func(e *Engine) { e.invoker = inv }
}

// WithStoreTx sets the transaction boundary for write + audit.
func WithStoreTx(tx StoreTx) EngineOption {
	return func(e *Engine) { e.tx = tx }
}

// WithTimeout overrides the remote invocation deadline.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithEngineLogger attaches a structured logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches engine metrics.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs the engine over the given store and audit recorder.
func NewEngine(entities EntityStore, recorder Recorder, opts ...EngineOption) *Engine {
	e := &Engine{
		machines: Machines(),
		entities: entities,
		audit:    recorder,
		tx:       noopTx{},
		timeout:  invoke.DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Machine returns the transition table for a kind, or CodeBadRequest for an
// unknown kind.
func (e *Engine) Machine(kind Kind) (*Machine, error) {
	m, ok := e.machines[kind]
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity kind %q", kind))
	}
	return m, nil
}

// Get loads one entity.
func (e *Engine) Get(ctx context.Context, kind Kind, id domain.EntityID) (*Entity, error) {
	if _, err := e.Machine(kind); err != nil {
		return nil, err
	}
	ent, err := e.entities.FindByID(ctx, kind, id)
	if err != nil {
		return nil, mapStoreErr(err, string(kind))
	}
	return ent, nil
}

// FindByKey loads one entity by its natural key within a community.
func (e *Engine) FindByKey(ctx context.Context, kind Kind, communityID domain.CommunityID, key string) (*Entity, error) {
	ent, err := e.entities.FindByKey(ctx, kind, communityID, key)
	if err != nil {
		return nil, mapStoreErr(err, string(kind))
	}
	return ent, nil
}

// Create runs the create transition: the entity materializes directly in the
// kind's initial status, and the creation is audited like any other
// transition.
func (e *Engine) Create(ctx context.Context, kind Kind, communityID domain.CommunityID, fields map[string]any) (*Entity, error) {
	m, err := e.Machine(kind)
	if err != nil {
		return nil, err
	}
	if m.ValidateCreate != nil {
		if err := m.ValidateCreate(fields); err != nil {
			e.observe(kind, ActionCreate, "rejected")
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	ent := &Entity{
		ID:          domain.NewEntityID(),
		Kind:        kind,
		CommunityID: communityID,
		Status:      m.Initial,
		Fields:      make(map[string]any, len(fields)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for k, v := range fields {
		ent.Fields[k] = v
	}
	if m.NaturalKey != nil {
		ent.Key = m.NaturalKey(fields)
	}

	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if ent.Key != "" {
			if err := e.entities.CreateIfKeyAvailable(ctx, ent); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrConflict) {
					return dErrors.New(dErrors.CodeConflict,
						fmt.Sprintf("a %s with key %q already exists in this community", kind, ent.Key))
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create entity")
			}
		} else if err := e.entities.Create(ctx, ent); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create entity")
		}

		return e.record(ctx, audit.Entry{
			Action:      audit.ActionFor(string(ActionCreate), string(kind)),
			EntityKind:  string(kind),
			EntityID:    ent.ID,
			CommunityID: ent.CommunityID,
			NewStatus:   string(ent.Status),
			Changes:     map[string]any{"fields": fields},
		})
	})
	if err != nil {
		e.observe(kind, ActionCreate, outcomeOf(err))
		return nil, err
	}

	e.observe(kind, ActionCreate, "committed")
	return ent, nil
}

// Transition applies one action to one entity. The sequence is fixed:
// table lookup, param validation, remote step, then conditional write plus
// audit append in one transaction. The write carries the loaded prior status
// as its condition, so a concurrent transition surfaces as CodeConflict
// rather than a lost update.
func (e *Engine) Transition(ctx context.Context, kind Kind, id domain.EntityID, action Action, params Params) (*Entity, error) {
	m, err := e.Machine(kind)
	if err != nil {
		return nil, err
	}
	rule, ok := m.Rules[action]
	if !ok {
		e.observe(kind, action, "rejected")
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("action %q is not defined for %s", action, kind))
	}

	ent, err := e.entities.FindByID(ctx, kind, id)
	if err != nil {
		return nil, mapStoreErr(err, string(kind))
	}

	if !rule.allows(ent.Status) {
		e.observe(kind, action, "rejected")
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot %s a %s in status %q", action, kind, ent.Status))
	}
	if rule.Validate != nil {
		if err := rule.Validate(ent, params); err != nil {
			e.observe(kind, action, "rejected")
			return nil, err
		}
	}

	prior := ent.Status
	next := ent.Clone()
	next.Status = rule.target(ent, params)
	if rule.Apply != nil {
		rule.Apply(next, params)
	}
	next.UpdatedAt = requestcontext.Now(ctx)

	if rule.Remote != nil {
		if err := e.callRemote(ctx, rule.Remote(ent, params)); err != nil {
			e.observe(kind, action, "remote_failed")
			return nil, err
		}
	}

	changes := computeChanges(params, ent, next)
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.entities.UpdateIfStatus(ctx, prior, next); err != nil {
			return mapStoreErr(err, string(kind))
		}
		return e.record(ctx, audit.Entry{
			Action:      audit.ActionFor(string(action), string(kind)),
			EntityKind:  string(kind),
			EntityID:    next.ID,
			CommunityID: next.CommunityID,
			PriorStatus: string(prior),
			NewStatus:   string(next.Status),
			Changes:     changes,
		})
	})
	if err != nil {
		e.observe(kind, action, outcomeOf(err))
		return nil, err
	}

	e.logger.InfoContext(ctx, "transition committed",
		"kind", kind, "action", action, "entity_id", next.ID.String(),
		"prior_status", prior, "new_status", next.Status)
	e.observe(kind, action, "committed")
	return next, nil
}

// callRemote runs the remote step and translates invocation failures into
// coded errors. A timeout gets CodeTimeout and a hint, because the remote
// effect is unknown and a blind retry risks double application.
func (e *Engine) callRemote(ctx context.Context, call RemoteCall) error {
	if e.invoker == nil {
		return dErrors.New(dErrors.CodeRemoteFailed,
			fmt.Sprintf("procedure %s is not available", call.Procedure))
	}

	resp, err := e.invoker.Invoke(ctx, call.Procedure, call.Payload, e.timeout)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ObserveRemoteFailure(string(invoke.CategoryOf(err)))
		}
		if invoke.IsTimeout(err) {
			return dErrors.WithHint(
				dErrors.Wrap(err, dErrors.CodeTimeout,
					fmt.Sprintf("procedure %s timed out; the remote effect is unknown", call.Procedure)),
				"re-query entity state before retrying to avoid double-application")
		}
		return dErrors.Wrap(err, dErrors.CodeRemoteFailed,
			fmt.Sprintf("procedure %s failed", call.Procedure))
	}
	if !resp.OK {
		msg := resp.Message
		if msg == "" {
			msg = "remote procedure declined the request"
		}
		if e.metrics != nil {
			e.metrics.ObserveRemoteFailure(string(invoke.ErrorGeneric))
		}
		return dErrors.New(dErrors.CodeRemoteFailed, msg)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, entry audit.Entry) error {
	err := e.audit.Record(ctx, entry)
	if err != nil && dErrors.HasCode(err, dErrors.CodeAuditUnavailable) && e.metrics != nil {
		e.metrics.ObserveAuditAppendFailure()
	}
	return err
}

func (e *Engine) observe(kind Kind, action Action, outcome string) {
	if e.metrics != nil {
		e.metrics.ObserveTransition(string(kind), string(action), outcome)
	}
}

func outcomeOf(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeAuditUnavailable:
		return "audit_failed"
	case dErrors.CodeNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// computeChanges records the action params plus before/after values for every
// field the action touched.
func computeChanges(params Params, before, after *Entity) map[string]any {
	changes := make(map[string]any, 2)
	if len(params) > 0 {
		changes["params"] = map[string]any(params)
	}
	diff := make(map[string]any)
	for k, afterVal := range after.Fields {
		beforeVal, had := before.Fields[k]
		if !had || beforeVal != afterVal {
			diff[k] = map[string]any{"before": beforeVal, "after": afterVal}
		}
	}
	if len(diff) > 0 {
		changes["fields"] = diff
	}
	return changes
}

func mapStoreErr(err error, kind string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, kind+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict,
			"the "+kind+" changed concurrently; re-read and retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}
