package lifecycle

import (
	"strings"

	dErrors "villageops/pkg/domain-errors"
)

// Admin user statuses. Admin users are platform-scoped, not bound to a
// community.
const (
	AdminActive      Status = "active"
	AdminDeactivated Status = "deactivated"
)

func newAdminUserMachine() *Machine {
	return &Machine{
		Kind:     KindAdminUser,
		Initial:  AdminActive,
		Statuses: []Status{AdminActive, AdminDeactivated},
		ValidateCreate: func(fields map[string]any) error {
			email, _ := stringValue(fields, FieldEmail)
			if email == "" || !strings.Contains(email, "@") {
				return dErrors.New(dErrors.CodeValidation, "a valid email is required")
			}
			if name, _ := stringValue(fields, FieldDisplayName); name == "" {
				return dErrors.New(dErrors.CodeValidation, "display_name is required")
			}
			return nil
		},
		Rules: map[Action]Rule{
			ActionDeactivate: {
				Sources: []Status{AdminActive},
				Target:  AdminDeactivated,
			},
			ActionReactivate: {
				Sources: []Status{AdminDeactivated},
				Target:  AdminActive,
			},
		},
	}
}
