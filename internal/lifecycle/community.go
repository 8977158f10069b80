package lifecycle

import (
	dErrors "villageops/pkg/domain-errors"
)

// Community statuses. A deleted community is terminal; its data is retained
// for 30 days by an external retention job before physical removal.
const (
	CommunityActive    Status = "active"
	CommunitySuspended Status = "suspended"
	CommunityDeleted   Status = "deleted"
)

func newCommunityMachine() *Machine {
	return &Machine{
		Kind:     KindCommunity,
		Initial:  CommunityActive,
		Statuses: []Status{CommunityActive, CommunitySuspended, CommunityDeleted},
		ValidateCreate: func(fields map[string]any) error {
			name, _ := stringValue(fields, FieldName)
			if name == "" {
				return dErrors.New(dErrors.CodeValidation, "community name is required")
			}
			if len(name) > 128 {
				return dErrors.New(dErrors.CodeValidation, "community name must be 128 characters or less")
			}
			return nil
		},
		Rules: map[Action]Rule{
			ActionSuspend: {
				Sources: []Status{CommunityActive},
				Target:  CommunitySuspended,
			},
			ActionReactivate: {
				Sources: []Status{CommunitySuspended},
				Target:  CommunityActive,
			},
			ActionDelete: {
				Sources: []Status{CommunityActive, CommunitySuspended},
				Target:  CommunityDeleted,
			},
		},
	}
}
