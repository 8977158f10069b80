package lifecycle

import (
	dErrors "villageops/pkg/domain-errors"
)

// Residence statuses. Residences are the bulk-ingested aggregate; the unit
// number is the natural key, unique per community.
const (
	ResidenceOccupied Status = "occupied"
)

func newResidenceMachine() *Machine {
	return &Machine{
		Kind:     KindResidence,
		Initial:  ResidenceOccupied,
		Statuses: []Status{ResidenceOccupied},
		ValidateCreate: func(fields map[string]any) error {
			if unit, _ := stringValue(fields, FieldUnitNumber); unit == "" {
				return dErrors.New(dErrors.CodeValidation, "unit_number is required")
			}
			if unitType, _ := stringValue(fields, FieldUnitType); unitType == "" {
				return dErrors.New(dErrors.CodeValidation, "type is required")
			}
			occupancy, ok := intValue(fields, FieldMaxOccupancy)
			if !ok || occupancy <= 0 {
				return dErrors.New(dErrors.CodeValidation, "max_occupancy must be a positive integer")
			}
			floor, ok := floatValue(fields, FieldFloorArea)
			if !ok || floor <= 0 {
				return dErrors.New(dErrors.CodeValidation, "floor_area must be a positive number")
			}
			if _, present := fields[FieldLotArea]; present {
				lot, ok := floatValue(fields, FieldLotArea)
				if !ok || lot < 0 {
					return dErrors.New(dErrors.CodeValidation, "lot_area must be a non-negative number")
				}
			}
			return nil
		},
		NaturalKey: func(fields map[string]any) string {
			unit, _ := stringValue(fields, FieldUnitNumber)
			return unit
		},
		Rules: map[Action]Rule{
			// Household membership lives outside this engine, but the policy
			// that the head of household is never removable is enforced here,
			// at the validation step, regardless of caller role.
			ActionRemoveMember: {
				Sources: []Status{ResidenceOccupied},
				Target:  ResidenceOccupied,
				Validate: func(_ *Entity, p Params) error {
					role, _ := stringValue(p, FieldMemberRole)
					if role == "head" {
						return dErrors.New(dErrors.CodeValidation, "the head of household cannot be removed")
					}
					if _, err := requireString(p, FieldHousehold); err != nil {
						return err
					}
					return nil
				},
			},
		},
	}
}
