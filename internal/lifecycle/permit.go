package lifecycle

import (
	dErrors "villageops/pkg/domain-errors"
)

// Construction permit statuses.
const (
	PermitPending    Status = "pending"
	PermitInProgress Status = "in_progress"
	PermitCompleted  Status = "completed"
	PermitRejected   Status = "rejected"
)

// procPermitUpdate is the remote procedure backing permit actions
// (homeowner notification and billing sync).
const procPermitUpdate = "construction_permit_update"

func newConstructionPermitMachine() *Machine {
	allPermitStatuses := []Status{PermitPending, PermitInProgress, PermitCompleted, PermitRejected}

	return &Machine{
		Kind:     KindConstructionPermit,
		Initial:  PermitPending,
		Statuses: allPermitStatuses,
		ValidateCreate: func(fields map[string]any) error {
			if household, _ := stringValue(fields, FieldHousehold); household == "" {
				return dErrors.New(dErrors.CodeValidation, "household is required")
			}
			if desc, _ := stringValue(fields, FieldDescription); desc == "" {
				return dErrors.New(dErrors.CodeValidation, "description is required")
			}
			return nil
		},
		Rules: map[Action]Rule{
			// Approval sets the road fee and stays pending until work starts;
			// supplying a start date moves the permit straight to in_progress.
			ActionApprove: {
				Sources: []Status{PermitPending},
				TargetFn: func(_ *Entity, p Params) Status {
					if start, _ := stringValue(p, FieldStartDate); start != "" {
						return PermitInProgress
					}
					return PermitPending
				},
				Validate: func(_ *Entity, p Params) error {
					if _, err := requireAmount(p, FieldRoadFeeAmount); err != nil {
						return err
					}
					_, err := optionalDate(p, FieldStartDate)
					return err
				},
				Apply: func(e *Entity, p Params) {
					fee, _ := intValue(p, FieldRoadFeeAmount)
					e.Fields[FieldRoadFeeAmount] = fee
					if start, _ := stringValue(p, FieldStartDate); start != "" {
						e.Fields[FieldStartDate] = start
					}
				},
				Remote: func(e *Entity, p Params) RemoteCall {
					fee, _ := intValue(p, FieldRoadFeeAmount)
					start, _ := stringValue(p, FieldStartDate)
					return RemoteCall{
						Procedure: procPermitUpdate,
						Payload: map[string]any{
							"permit_id":       e.ID.String(),
							"action":          "approve",
							"road_fee_amount": fee,
							"start_date":      start,
						},
					}
				},
			},
			ActionReject: {
				Sources: []Status{PermitPending},
				Target:  PermitRejected,
				Validate: func(_ *Entity, p Params) error {
					_, err := requireString(p, FieldReason)
					return err
				},
				Apply: func(e *Entity, p Params) {
					reason, _ := stringValue(p, FieldReason)
					e.Fields[FieldReason] = reason
				},
				Remote: func(e *Entity, p Params) RemoteCall {
					reason, _ := stringValue(p, FieldReason)
					return RemoteCall{
						Procedure: procPermitUpdate,
						Payload: map[string]any{
							"permit_id": e.ID.String(),
							"action":    "reject",
							"reason":    reason,
						},
					}
				},
			},
			ActionMarkInProgress: {
				Sources: []Status{PermitPending},
				Target:  PermitInProgress,
				Validate: func(_ *Entity, p Params) error {
					_, err := optionalDate(p, FieldStartDate)
					return err
				},
				Apply: func(e *Entity, p Params) {
					if start, _ := stringValue(p, FieldStartDate); start != "" {
						e.Fields[FieldStartDate] = start
					}
				},
				Remote: func(e *Entity, _ Params) RemoteCall {
					return RemoteCall{
						Procedure: procPermitUpdate,
						Payload: map[string]any{
							"permit_id": e.ID.String(),
							"action":    "mark_in_progress",
						},
					}
				},
			},
			ActionMarkCompleted: {
				Sources: []Status{PermitInProgress},
				Target:  PermitCompleted,
				Remote: func(e *Entity, _ Params) RemoteCall {
					return RemoteCall{
						Procedure: procPermitUpdate,
						Payload: map[string]any{
							"permit_id": e.ID.String(),
							"action":    "mark_completed",
						},
					}
				},
			},
			// mark_paid flips the fee-paid flag wherever the permit is in its
			// lifecycle; re-applying it on an already-paid permit is a no-op
			// write that still appends an audit entry.
			ActionMarkPaid: {
				Sources: allPermitStatuses,
				TargetFn: func(e *Entity, _ Params) Status {
					return e.Status
				},
				Apply: func(e *Entity, _ Params) {
					e.Fields[FieldFeePaid] = true
				},
				Remote: func(e *Entity, _ Params) RemoteCall {
					return RemoteCall{
						Procedure: procPermitUpdate,
						Payload: map[string]any{
							"permit_id": e.ID.String(),
							"action":    "mark_paid",
						},
					}
				},
			},
		},
	}
}
