package lifecycle_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"villageops/internal/audit"
	auditmemory "villageops/internal/audit/store/memory"
	"villageops/internal/invoke"
	"villageops/internal/lifecycle"
	entitymemory "villageops/internal/lifecycle/store/memory"
	"villageops/pkg/domain"
	dErrors "villageops/pkg/domain-errors"
	"villageops/pkg/requestcontext"
)

func actorCtx() context.Context {
	return requestcontext.WithActor(context.Background(), requestcontext.Actor{
		ID:    "admin-1",
		Email: "admin@example.com",
		Role:  "platform_admin",
	})
}

// recordingInvoker answers every procedure with success and remembers the
// last call.
type recordingInvoker struct {
	calls     atomic.Int64
	procedure string
	payload   map[string]any
}

func (r *recordingInvoker) Invoke(_ context.Context, procedure string, payload map[string]any, _ time.Duration) (*invoke.Response, error) {
	r.calls.Add(1)
	r.procedure = procedure
	r.payload = payload
	return &invoke.Response{OK: true}, nil
}

type fixture struct {
	engine   *lifecycle.Engine
	entities *entitymemory.InMemoryStore
	trail    *auditmemory.InMemoryStore
	invoker  *recordingInvoker
}

func newFixture(opts ...lifecycle.EngineOption) *fixture {
	f := &fixture{
		entities: entitymemory.NewInMemoryStore(),
		trail:    auditmemory.NewInMemoryStore(),
		invoker:  &recordingInvoker{},
	}
	recorder := audit.NewService(f.trail)
	opts = append([]lifecycle.EngineOption{lifecycle.WithInvoker(f.invoker)}, opts...)
	f.engine = lifecycle.NewEngine(f.entities, recorder, opts...)
	return f
}

func (f *fixture) createSticker(t *testing.T, communityID domain.CommunityID) *lifecycle.Entity {
	t.Helper()
	e, err := f.engine.Create(actorCtx(), lifecycle.KindVehicleSticker, communityID, map[string]any{
		lifecycle.FieldPlateNumber: "ABC-123",
		lifecycle.FieldHousehold:   "H-42",
	})
	require.NoError(t, err)
	return e
}

func TestStickerApprovalFlow(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()
	sticker := f.createSticker(t, domain.NewCommunityID())

	approved, err := f.engine.Transition(ctx, lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2025-12-31"})
	require.NoError(t, err)

	assert.Equal(t, lifecycle.StickerActive, approved.Status)
	assert.Equal(t, "2025-12-31", approved.Fields[lifecycle.FieldExpiryDate])

	assert.Equal(t, int64(1), f.invoker.calls.Load())
	assert.Equal(t, "vehicle_sticker_decision", f.invoker.procedure)
	assert.Equal(t, "2025-12-31", f.invoker.payload["expiry_date"])

	trail, err := f.trail.ListByEntity(ctx, "vehicle_sticker", sticker.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "create_vehicle_sticker", trail[0].Action)
	assert.Equal(t, "approve_vehicle_sticker", trail[1].Action)
	assert.Equal(t, "requested", trail[1].PriorStatus)
	assert.Equal(t, "active", trail[1].NewStatus)
	assert.Equal(t, "admin-1", trail[1].Actor)
}

func TestApproveRequiresExpiryDate(t *testing.T) {
	f := newFixture()
	sticker := f.createSticker(t, domain.NewCommunityID())

	_, err := f.engine.Transition(actorCtx(), lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	// Validation failed before the remote step and before any write.
	assert.Equal(t, int64(0), f.invoker.calls.Load())
	assert.Equal(t, 1, f.trail.Len())
}

func TestInvalidTransitionRejected(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()
	sticker := f.createSticker(t, domain.NewCommunityID())

	_, err := f.engine.Transition(ctx, lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2025-12-31"})
	require.NoError(t, err)

	_, err = f.engine.Transition(ctx, lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2026-12-31"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	_, err = f.engine.Transition(ctx, lifecycle.KindVehicleSticker, sticker.ID,
		"polish", lifecycle.Params{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func TestRemoteTimeoutCommitsNothing(t *testing.T) {
	f := newFixture()
	sticker := f.createSticker(t, domain.NewCommunityID())

	timingOut := invoke.Func(func(_ context.Context, procedure string, _ map[string]any, _ time.Duration) (*invoke.Response, error) {
		return nil, invoke.NewError(invoke.ErrorTimeout, procedure, "no response before deadline", context.DeadlineExceeded)
	})
	engine := lifecycle.NewEngine(f.entities, audit.NewService(f.trail), lifecycle.WithInvoker(timingOut))

	_, err := engine.Transition(actorCtx(), lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2025-12-31"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.NotEmpty(t, dErrors.HintOf(err))

	current, err := f.entities.FindByID(context.Background(), lifecycle.KindVehicleSticker, sticker.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StickerRequested, current.Status)
	assert.Equal(t, 1, f.trail.Len())
}

func TestRemoteDeclineCommitsNothing(t *testing.T) {
	f := newFixture()
	sticker := f.createSticker(t, domain.NewCommunityID())

	declining := invoke.Func(func(context.Context, string, map[string]any, time.Duration) (*invoke.Response, error) {
		return &invoke.Response{OK: false, Message: "plate is on the denylist"}, nil
	})
	engine := lifecycle.NewEngine(f.entities, audit.NewService(f.trail), lifecycle.WithInvoker(declining))

	_, err := engine.Transition(actorCtx(), lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2025-12-31"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRemoteFailed))
	assert.Contains(t, err.Error(), "denylist")

	current, err := f.entities.FindByID(context.Background(), lifecycle.KindVehicleSticker, sticker.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StickerRequested, current.Status)
}

// TestConcurrentTransitionConflicts races the engine's conditional write
// against a competing status change that lands during the remote step.
func TestConcurrentTransitionConflicts(t *testing.T) {
	f := newFixture()
	sticker := f.createSticker(t, domain.NewCommunityID())

	sneaky := invoke.Func(func(ctx context.Context, _ string, _ map[string]any, _ time.Duration) (*invoke.Response, error) {
		current, err := f.entities.FindByID(ctx, lifecycle.KindVehicleSticker, sticker.ID)
		if err != nil {
			return nil, err
		}
		competing := current.Clone()
		competing.Status = lifecycle.StickerRejected
		if err := f.entities.UpdateIfStatus(ctx, lifecycle.StickerRequested, competing); err != nil {
			return nil, err
		}
		return &invoke.Response{OK: true}, nil
	})
	engine := lifecycle.NewEngine(f.entities, audit.NewService(f.trail), lifecycle.WithInvoker(sneaky))

	_, err := engine.Transition(actorCtx(), lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2025-12-31"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	current, err := f.entities.FindByID(context.Background(), lifecycle.KindVehicleSticker, sticker.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StickerRejected, current.Status)
}

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, audit.Entry) error {
	return errors.New("audit backend unavailable")
}

func (failingAuditStore) ListRecent(context.Context, int) ([]audit.Entry, error) {
	return nil, nil
}

func (failingAuditStore) ListByEntity(context.Context, string, domain.EntityID) ([]audit.Entry, error) {
	return nil, nil
}

func TestAuditFailureFailsTransition(t *testing.T) {
	f := newFixture()
	sticker := f.createSticker(t, domain.NewCommunityID())

	engine := lifecycle.NewEngine(f.entities, audit.NewService(failingAuditStore{}),
		lifecycle.WithInvoker(f.invoker))

	_, err := engine.Transition(actorCtx(), lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionRevoke, lifecycle.Params{lifecycle.FieldReason: "lost plate"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditUnavailable))
}

func TestTransitionRequiresResolvedActor(t *testing.T) {
	f := newFixture()
	sticker := f.createSticker(t, domain.NewCommunityID())

	_, err := f.engine.Transition(context.Background(), lifecycle.KindVehicleSticker, sticker.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldExpiryDate: "2025-12-31"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestPermitApproval(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()
	communityID := domain.NewCommunityID()

	permit, err := f.engine.Create(ctx, lifecycle.KindConstructionPermit, communityID, map[string]any{
		lifecycle.FieldHousehold:   "H-7",
		lifecycle.FieldDescription: "garage extension",
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.PermitPending, permit.Status)

	// Approval without a start date keeps the permit pending.
	approved, err := f.engine.Transition(ctx, lifecycle.KindConstructionPermit, permit.ID,
		lifecycle.ActionApprove, lifecycle.Params{lifecycle.FieldRoadFeeAmount: 150000})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PermitPending, approved.Status)
	assert.Equal(t, int64(150000), approved.AmountField(lifecycle.FieldRoadFeeAmount))
	assert.Equal(t, "construction_permit_update", f.invoker.procedure)

	started, err := f.engine.Transition(ctx, lifecycle.KindConstructionPermit, permit.ID,
		lifecycle.ActionMarkInProgress, lifecycle.Params{lifecycle.FieldStartDate: "2026-09-01"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PermitInProgress, started.Status)

	done, err := f.engine.Transition(ctx, lifecycle.KindConstructionPermit, permit.ID,
		lifecycle.ActionMarkCompleted, lifecycle.Params{})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PermitCompleted, done.Status)
}

func TestPermitApprovalWithStartDateStartsWork(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()

	permit, err := f.engine.Create(ctx, lifecycle.KindConstructionPermit, domain.NewCommunityID(), map[string]any{
		lifecycle.FieldHousehold:   "H-7",
		lifecycle.FieldDescription: "perimeter fence",
	})
	require.NoError(t, err)

	approved, err := f.engine.Transition(ctx, lifecycle.KindConstructionPermit, permit.ID,
		lifecycle.ActionApprove, lifecycle.Params{
			lifecycle.FieldRoadFeeAmount: 80000,
			lifecycle.FieldStartDate:     "2026-09-15",
		})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PermitInProgress, approved.Status)
	assert.Equal(t, "2026-09-15", approved.Fields[lifecycle.FieldStartDate])
}

// Marking the road fee paid twice is legal: the second application changes
// nothing but still leaves its own audit entry.
func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()

	permit, err := f.engine.Create(ctx, lifecycle.KindConstructionPermit, domain.NewCommunityID(), map[string]any{
		lifecycle.FieldHousehold:   "H-9",
		lifecycle.FieldDescription: "driveway repaving",
	})
	require.NoError(t, err)

	first, err := f.engine.Transition(ctx, lifecycle.KindConstructionPermit, permit.ID,
		lifecycle.ActionMarkPaid, lifecycle.Params{})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PermitPending, first.Status)
	assert.Equal(t, true, first.Fields[lifecycle.FieldFeePaid])

	second, err := f.engine.Transition(ctx, lifecycle.KindConstructionPermit, permit.ID,
		lifecycle.ActionMarkPaid, lifecycle.Params{})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PermitPending, second.Status)

	trail, err := f.trail.ListByEntity(ctx, "construction_permit", permit.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "mark_paid_construction_permit", trail[2].Action)
	assert.Equal(t, "pending", trail[2].PriorStatus)
	assert.Equal(t, "pending", trail[2].NewStatus)
}

func TestFeePayment(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()

	fee, err := f.engine.Create(ctx, lifecycle.KindAssociationFee, domain.NewCommunityID(), map[string]any{
		lifecycle.FieldHousehold: "H-3",
		lifecycle.FieldAmount:    250000,
		lifecycle.FieldDueDate:   "2026-09-30",
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.FeeUnpaid, fee.Status)

	// Partial payments are not accepted.
	_, err = f.engine.Transition(ctx, lifecycle.KindAssociationFee, fee.ID,
		lifecycle.ActionRecordPayment, lifecycle.Params{lifecycle.FieldAmount: 100000})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	paid, err := f.engine.Transition(ctx, lifecycle.KindAssociationFee, fee.ID,
		lifecycle.ActionRecordPayment, lifecycle.Params{lifecycle.FieldAmount: 250000})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.FeePaid, paid.Status)
	assert.Equal(t, int64(250000), paid.AmountField(lifecycle.FieldPaidAmount))
}

func TestFeeOverdueAndWaive(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()

	fee, err := f.engine.Create(ctx, lifecycle.KindAssociationFee, domain.NewCommunityID(), map[string]any{
		lifecycle.FieldHousehold: "H-4",
		lifecycle.FieldAmount:    180000,
		lifecycle.FieldDueDate:   "2026-07-31",
	})
	require.NoError(t, err)

	overdue, err := f.engine.Transition(ctx, lifecycle.KindAssociationFee, fee.ID,
		lifecycle.ActionMarkOverdue, lifecycle.Params{})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.FeeOverdue, overdue.Status)

	_, err = f.engine.Transition(ctx, lifecycle.KindAssociationFee, fee.ID,
		lifecycle.ActionWaive, lifecycle.Params{lifecycle.FieldReason: "too short"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	waived, err := f.engine.Transition(ctx, lifecycle.KindAssociationFee, fee.ID,
		lifecycle.ActionWaive, lifecycle.Params{lifecycle.FieldReason: "household suffered typhoon damage this quarter"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.FeeWaived, waived.Status)

	// A waived fee accepts no further payments.
	_, err = f.engine.Transition(ctx, lifecycle.KindAssociationFee, fee.ID,
		lifecycle.ActionRecordPayment, lifecycle.Params{lifecycle.FieldAmount: 180000})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func TestHeadOfHouseholdCannotBeRemoved(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()
	communityID := domain.NewCommunityID()

	residence, err := f.engine.Create(ctx, lifecycle.KindResidence, communityID, map[string]any{
		lifecycle.FieldUnitNumber:   "B-201",
		lifecycle.FieldUnitType:     "townhouse",
		lifecycle.FieldMaxOccupancy: 6,
		lifecycle.FieldFloorArea:    84.5,
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.ResidenceOccupied, residence.Status)
	assert.Equal(t, "B-201", residence.Key)

	_, err = f.engine.Transition(ctx, lifecycle.KindResidence, residence.ID,
		lifecycle.ActionRemoveMember, lifecycle.Params{
			lifecycle.FieldHousehold:  "H-201",
			lifecycle.FieldMemberRole: "head",
		})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Contains(t, err.Error(), "head of household")

	_, err = f.engine.Transition(ctx, lifecycle.KindResidence, residence.ID,
		lifecycle.ActionRemoveMember, lifecycle.Params{
			lifecycle.FieldHousehold:  "H-201",
			lifecycle.FieldMemberRole: "member",
		})
	require.NoError(t, err)
}

func TestDuplicateResidenceKeyConflicts(t *testing.T) {
	f := newFixture()
	ctx := actorCtx()
	communityID := domain.NewCommunityID()

	fields := map[string]any{
		lifecycle.FieldUnitNumber:   "A-101",
		lifecycle.FieldUnitType:     "bungalow",
		lifecycle.FieldMaxOccupancy: 4,
		lifecycle.FieldFloorArea:    60.0,
	}
	_, err := f.engine.Create(ctx, lifecycle.KindResidence, communityID, fields)
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, lifecycle.KindResidence, communityID, fields)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	f := newFixture()
	_, err := f.engine.Create(actorCtx(), "garden_gnome", domain.NewCommunityID(), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestTransitionMissingEntity(t *testing.T) {
	f := newFixture()
	_, err := f.engine.Transition(actorCtx(), lifecycle.KindCommunity, domain.NewEntityID(),
		lifecycle.ActionSuspend, lifecycle.Params{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
