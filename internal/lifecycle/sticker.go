package lifecycle

import (
	dErrors "villageops/pkg/domain-errors"
)

// Vehicle sticker statuses.
const (
	StickerRequested Status = "requested"
	StickerActive    Status = "active"
	StickerRejected  Status = "rejected"
	StickerRevoked   Status = "revoked"
)

// procStickerDecision is the remote procedure backing sticker approvals and
// rejections (gate hardware sync).
const procStickerDecision = "vehicle_sticker_decision"

func newVehicleStickerMachine() *Machine {
	return &Machine{
		Kind:     KindVehicleSticker,
		Initial:  StickerRequested,
		Statuses: []Status{StickerRequested, StickerActive, StickerRejected, StickerRevoked},
		ValidateCreate: func(fields map[string]any) error {
			if plate, _ := stringValue(fields, FieldPlateNumber); plate == "" {
				return dErrors.New(dErrors.CodeValidation, "plate_number is required")
			}
			if household, _ := stringValue(fields, FieldHousehold); household == "" {
				return dErrors.New(dErrors.CodeValidation, "household is required")
			}
			return nil
		},
		Rules: map[Action]Rule{
			ActionApprove: {
				Sources: []Status{StickerRequested},
				Target:  StickerActive,
				Validate: func(_ *Entity, p Params) error {
					_, err := requireDate(p, FieldExpiryDate)
					return err
				},
				Apply: func(e *Entity, p Params) {
					expiry, _ := stringValue(p, FieldExpiryDate)
					e.Fields[FieldExpiryDate] = expiry
				},
				Remote: func(e *Entity, p Params) RemoteCall {
					expiry, _ := stringValue(p, FieldExpiryDate)
					return RemoteCall{
						Procedure: procStickerDecision,
						Payload: map[string]any{
							"sticker_id":  e.ID.String(),
							"action":      "approve",
							"expiry_date": expiry,
						},
					}
				},
			},
			ActionReject: {
				Sources: []Status{StickerRequested},
				Target:  StickerRejected,
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
						Procedure: procStickerDecision,
						Payload: map[string]any{
							"sticker_id": e.ID.String(),
							"action":     "reject",
							"reason":     reason,
						},
					}
				},
			},
			// Revocation is local: the sticker is already in the gate
			// denylist once status changes.
			ActionRevoke: {
				Sources: []Status{StickerActive},
				Target:  StickerRevoked,
				Validate: func(_ *Entity, p Params) error {
					_, err := requireString(p, FieldReason)
					return err
				},
				Apply: func(e *Entity, p Params) {
					reason, _ := stringValue(p, FieldReason)
					e.Fields[FieldReason] = reason
				},
			},
		},
	}
}
