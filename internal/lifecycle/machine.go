package lifecycle

// RemoteCall names the server-side procedure a remote-backed action must
// complete before its local write commits.
type RemoteCall struct {
	Procedure string
	Payload   map[string]any
}

// Rule encodes one row of a kind's transition table: the allowed source
// statuses, the target status, param constraints, and the side-field
// application that happens atomically with the status change.
type Rule struct {
	Sources []Status
	Target  Status
	// TargetFn overrides Target when the destination depends on params
	// (permit approval with a start date) or on the current status
	// (mark_paid keeps whatever status the permit is in).
	TargetFn func(e *Entity, p Params) Status
	// Validate checks action params against the current entity snapshot.
	Validate func(e *Entity, p Params) error
	// Apply stages kind-specific side fields on the cloned entity.
	Apply func(e *Entity, p Params)
	// Remote, when set, builds the remote step for this action. The local
	// status write commits only after the remote call reports success.
	Remote func(e *Entity, p Params) RemoteCall
}

func (r Rule) allows(s Status) bool {
	for _, src := range r.Sources {
		if src == s {
			return true
		}
	}
	return false
}

func (r Rule) target(e *Entity, p Params) Status {
	if r.TargetFn != nil {
		return r.TargetFn(e, p)
	}
	return r.Target
}

// Machine is one kind's state machine: its status set, the fixed initial
// status of the create transition, and the transition table.
type Machine struct {
	Kind     Kind
	Initial  Status
	Statuses []Status
	// ValidateCreate checks the payload of the create transition.
	ValidateCreate func(fields map[string]any) error
	// NaturalKey extracts the per-community unique key from create fields,
	// when the kind has one.
	NaturalKey func(fields map[string]any) string
	Rules      map[Action]Rule
}

// Machines returns the transition tables for every entity kind. Tables are
// static data consulted before mutation, never ad hoc branches per call site.
func Machines() map[Kind]*Machine {
	all := []*Machine{
		newCommunityMachine(),
		newVehicleStickerMachine(),
		newConstructionPermitMachine(),
		newAssociationFeeMachine(),
		newAdminUserMachine(),
		newResidenceMachine(),
	}
	out := make(map[Kind]*Machine, len(all))
	for _, m := range all {
		out[m.Kind] = m
	}
	return out
}
