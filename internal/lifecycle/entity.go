// Package lifecycle implements the entity lifecycle and workflow engine:
// one finite-state machine per entity kind, sharing a single transition
// contract. Legal (source status, action) → target mappings are static data
// consulted before any mutation; every committed transition appends exactly
// one audit entry.
package lifecycle

import (
	"time"

	"villageops/pkg/domain"
)

// Kind identifies an entity family with its own state machine.
type Kind string

const (
	KindCommunity          Kind = "community"
	KindVehicleSticker     Kind = "vehicle_sticker"
	KindConstructionPermit Kind = "construction_permit"
	KindAssociationFee     Kind = "association_fee"
	KindAdminUser          Kind = "admin_user"
	KindResidence          Kind = "residence"
)

// Status is a member of one kind's finite status set.
type Status string

// Action is a caller intent validated against the kind's transition table.
type Action string

const (
	ActionCreate         Action = "create"
	ActionSuspend        Action = "suspend"
	ActionReactivate     Action = "reactivate"
	ActionDelete         Action = "delete"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionRevoke         Action = "revoke"
	ActionMarkInProgress Action = "mark_in_progress"
	ActionMarkCompleted  Action = "mark_completed"
	ActionMarkPaid       Action = "mark_paid"
	ActionRecordPayment  Action = "record_payment"
	ActionWaive          Action = "waive"
	ActionMarkOverdue    Action = "mark_overdue"
	ActionDeactivate     Action = "deactivate"
	ActionRemoveMember   Action = "remove_member"
)

// Field keys for kind-specific payloads.
const (
	FieldName          = "name"
	FieldPlateNumber   = "plate_number"
	FieldHousehold     = "household"
	FieldExpiryDate    = "expiry_date"
	FieldReason        = "reason"
	FieldDescription   = "description"
	FieldRoadFeeAmount = "road_fee_amount"
	FieldFeePaid       = "fee_paid"
	FieldStartDate     = "start_date"
	FieldAmount        = "amount"
	FieldPaidAmount    = "paid_amount"
	FieldDueDate       = "due_date"
	FieldEmail         = "email"
	FieldDisplayName   = "display_name"
	FieldUnitNumber    = "unit_number"
	FieldUnitType      = "type"
	FieldMaxOccupancy  = "max_occupancy"
	FieldFloorArea     = "floor_area"
	FieldLotArea       = "lot_area"
	FieldMemberRole    = "member_role"
)

// Entity is the generic lifecycle aggregate, instantiated per kind.
//
// Invariants:
//   - Status is always a member of the kind's legal status set
//   - Status changes only through the transition contract (Engine)
//   - Kind-specific side fields change atomically with the status
type Entity struct {
	ID          domain.EntityID
	Kind        Kind
	CommunityID domain.CommunityID
	// Key is the entity's natural key within its community scope (unit
	// number for residences); empty when the kind has none.
	Key       string
	Status    Status
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can stage field mutations without
// touching the loaded snapshot.
func (e *Entity) Clone() *Entity {
	clone := *e
	clone.Fields = make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return &clone
}

// Field returns a payload field, or nil when absent.
func (e *Entity) Field(key string) any {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[key]
}

// AmountField reads a monetary field in minor units, tolerating the numeric
// types JSON decoding produces.
func (e *Entity) AmountField(key string) int64 {
	n, _ := intValue(e.Fields, key)
	return n
}
