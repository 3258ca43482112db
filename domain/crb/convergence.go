package crb

// ConvergencePoint is one row of the greedy convergence history: the
// error-estimator values recorded at the reduced dimension N where they
// were evaluated (spec.md §4.5, §4.9).
type ConvergencePoint struct {
	N         int
	DeltaMax  float64 // max_{mu in Xi_train} Delta_N(mu), the quantity the greedy maximizes
	DeltaPr   float64 // primal estimator at the maximizing mu
	DeltaDu   float64 // dual estimator at the maximizing mu, 0 if no dual problem
	MaxMu     int     // index into the training sampling of the maximizing mu
}

// ConvergenceHistory is the ordered sequence of ConvergencePoint values
// recorded once per greedy iteration (spec.md §3: "history of
// (N, Delta_max, Delta_pr, Delta_du) triples").
type ConvergenceHistory struct {
	points []ConvergencePoint
}

// NewConvergenceHistory returns an empty history.
func NewConvergenceHistory() *ConvergenceHistory { return &ConvergenceHistory{} }

// Record appends one convergence point. Points must be appended in
// increasing N; callers (GreedyService) are responsible for the ordering.
func (h *ConvergenceHistory) Record(p ConvergencePoint) {
	h.points = append(h.points, p)
}

// Points returns a defensive copy of the recorded history.
func (h *ConvergenceHistory) Points() []ConvergencePoint {
	cp := make([]ConvergencePoint, len(h.points))
	copy(cp, h.points)
	return cp
}

// Len returns the number of recorded points.
func (h *ConvergenceHistory) Len() int { return len(h.points) }

// Last returns the most recently recorded point and true, or the zero
// value and false if the history is empty.
func (h *ConvergenceHistory) Last() (ConvergencePoint, bool) {
	if len(h.points) == 0 {
		return ConvergencePoint{}, false
	}
	return h.points[len(h.points)-1], true
}
