package lifecycle

import (
	"fmt"

	dErrors "villageops/pkg/domain-errors"
)

// Association fee statuses. "overdue" is set by the external dues scheduler
// through the same transition contract (mark_overdue), never by a direct
// status write.
const (
	FeeUnpaid  Status = "unpaid"
	FeePaid    Status = "paid"
	FeeOverdue Status = "overdue"
	FeeWaived  Status = "waived"
)

// waiveReasonMinLen keeps waiver justifications meaningful for the trail.
const waiveReasonMinLen = 10

func newAssociationFeeMachine() *Machine {
	return &Machine{
		Kind:     KindAssociationFee,
		Initial:  FeeUnpaid,
		Statuses: []Status{FeeUnpaid, FeePaid, FeeOverdue, FeeWaived},
		ValidateCreate: func(fields map[string]any) error {
			if household, _ := stringValue(fields, FieldHousehold); household == "" {
				return dErrors.New(dErrors.CodeValidation, "household is required")
			}
			amount, ok := intValue(fields, FieldAmount)
			if !ok || amount <= 0 {
				return dErrors.New(dErrors.CodeValidation, "amount must be a positive whole amount in minor units")
			}
			if due, _ := stringValue(fields, FieldDueDate); due == "" {
				return dErrors.New(dErrors.CodeValidation, "due_date is required")
			}
			return nil
		},
		Rules: map[Action]Rule{
			ActionRecordPayment: {
				Sources: []Status{FeeUnpaid, FeeOverdue},
				Target:  FeePaid,
				Validate: func(e *Entity, p Params) error {
					paid, err := requireAmount(p, FieldAmount)
					if err != nil {
						return err
					}
					remaining := e.AmountField(FieldAmount) - e.AmountField(FieldPaidAmount)
					if paid != remaining {
						return dErrors.New(dErrors.CodeValidation,
							fmt.Sprintf("payment must equal the remaining balance of %d", remaining))
					}
					return nil
				},
				Apply: func(e *Entity, _ Params) {
					e.Fields[FieldPaidAmount] = e.AmountField(FieldAmount)
				},
			},
			ActionWaive: {
				Sources: []Status{FeeUnpaid, FeeOverdue},
				Target:  FeeWaived,
				Validate: func(_ *Entity, p Params) error {
					_, err := requireReason(p, FieldReason, waiveReasonMinLen)
					return err
				},
				Apply: func(e *Entity, p Params) {
					reason, _ := stringValue(p, FieldReason)
					e.Fields[FieldReason] = reason
				},
			},
			ActionMarkOverdue: {
				Sources: []Status{FeeUnpaid},
				Target:  FeeOverdue,
			},
		},
	}
}
