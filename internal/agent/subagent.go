package agent

import "context"

// Specialist is an escape hatch for page classes that need bespoke
// handling beyond the generic planner loop (the teacher's SubAgent
// seam, generalised: this agent's domain has no email-client-specific
// special casing, but the extension point is kept for page classes a
// future run might want dedicated handling for, e.g. a particular
// site family with an unusual consent-banner flow).
type Specialist interface {
	Name() string
	CanHandle(pageClass string) bool
	NextAction(ctx context.Context, pc PlanContext) (Action, error)
}

// SpecialistRegistry picks the first Specialist that claims a page
// class, falling back to the generic Planner when none do. Exported so
// the runloop package, which drives the loop that the registry feeds,
// can build and query one without reaching into agent internals.
type SpecialistRegistry struct {
	specialists []Specialist
}

func NewSpecialistRegistry(specialists ...Specialist) *SpecialistRegistry {
	return &SpecialistRegistry{specialists: specialists}
}

func (r *SpecialistRegistry) Find(pageClass string) Specialist {
	for _, s := range r.specialists {
		if s.CanHandle(pageClass) {
			return s
		}
	}
	return nil
}
