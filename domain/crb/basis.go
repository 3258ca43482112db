// Package crb holds the Certified Reduced Basis data model: the reduced
// basis store, the affine-decomposition and residual-coupling caches, the
// variance tables, and the Database aggregate that ties them to a greedy
// run (spec.md §3, §4.2-§4.3, §4.7, §4.9).
package crb

import (
	"gocrb/domain/parameter"
)

// Element is an opaque truth-space vector. The core never inspects its
// contents; every operation on it (scalar product, affine-operator
// application, Riesz solve) is delegated to ports.TruthModel. This is the
// capability-interface replacement for the teacher-model's compile-time
// generic truth-space vector type (spec.md §9 redesign note).
type Element any

// Basis is the append-only, ordered container of truth-space elements
// W_N (spec.md §4.2): a primal basis holds solution snapshots, a dual
// basis holds adjoint snapshots. Entries at index < N-k are never mutated
// once appended (spec.md §3 invariant).
type Basis struct {
	elements []Element
	mus      []parameter.Parameter // the mu_n that produced element n
}

// NewBasis returns an empty basis.
func NewBasis() *Basis {
	return &Basis{}
}

// Size returns N = |W_N|.
func (b *Basis) Size() int { return len(b.elements) }

// At returns the n-th basis element.
func (b *Basis) At(n int) Element { return b.elements[n] }

// ParameterAt returns the parameter that produced the n-th basis element.
func (b *Basis) ParameterAt(n int) parameter.Parameter { return b.mus[n] }

// Append adds one element produced by parameter mu, growing N by one.
func (b *Basis) Append(el Element, mu parameter.Parameter) {
	b.elements = append(b.elements, el)
	b.mus = append(b.mus, mu)
}

// AppendAll appends a batch of elements produced by the same mu (the POD-
// compressed transient enrichment of spec.md §4.10 appends N_m modes per
// greedy step from a single trajectory).
func (b *Basis) AppendAll(els []Element, mu parameter.Parameter) {
	for _, el := range els {
		b.Append(el, mu)
	}
}

// Replace overwrites element n in place. Used only by the orthonormaliser,
// which normalises/re-expresses the last k newly appended vectors — never
// indices below N-k (spec.md §3 invariant).
func (b *Basis) Replace(n int, el Element) {
	b.elements[n] = el
}

// Last returns the indices of the last k elements appended, the "newly
// added" set every update-policy in §4.3/§4.4/§4.7 restricts work to.
func (b *Basis) Last(k int) []int {
	n := b.Size()
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		idx[i] = n - k + i
	}
	return idx
}
