package lifecycle

import "github.com/nidzo732/fleetwork/pkg/types"

// SalvagePolicy decides whether a task that was in flight on a worker that
// just died should be resubmitted on another worker. Spec §9 leaves
// salvage-on-death resubmission an open question; this ships it as a
// disabled-by-default hook rather than an always-on behavior, since
// silently re-running a task that already had a partial side effect can
// be worse than losing it outright.
type SalvagePolicy interface {
	// ShouldSalvage reports whether task, previously placed on a worker
	// that has just been marked dead, should be resubmitted.
	ShouldSalvage(task *types.Task) bool
}

// NoSalvage never resubmits. It is the default policy used when a
// workgroup is not explicitly configured with one.
type NoSalvage struct{}

// ShouldSalvage always returns false.
func (NoSalvage) ShouldSalvage(*types.Task) bool { return false }
