package ports

import (
	"gocrb/domain/crb"
)

// PODProvider is the Proper Orthogonal Decomposition collaborator used to
// compress a transient trajectory's truth-space snapshots into a handful
// of dominant modes before they are appended to the reduced basis
// (spec.md §4.10: "an external collaborator, out of core scope").
type PODProvider interface {
	// Compress returns the leading modeCount left singular vectors of the
	// snapshot matrix [snapshots[0], ..., snapshots[k-1]] in the X inner
	// product, most-energetic first, together with their retained
	// energy fraction.
	Compress(snapshots []crb.Element, modeCount int) (modes []crb.Element, energy float64, err error)
}
