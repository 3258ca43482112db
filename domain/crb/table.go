package crb

import (
	"gonum.org/v1/gonum/mat"
)

// MatrixEntry is one term of an affine-decomposition cache: the reduced
// projection Â_{q,m}, a dense N×N matrix grown by append-row/append-column
// as N grows (spec.md §4.3, §3: "resized by append-row/append-column as N
// grows; entries for indices < N-k never change").
type MatrixEntry struct {
	m *mat.Dense
	n int
}

// NewMatrixEntry returns an empty (0x0) entry.
func NewMatrixEntry() *MatrixEntry { return &MatrixEntry{} }

// Dense returns the current N×N matrix. Callers must not retain it across
// a Grow call, which replaces the backing array.
func (e *MatrixEntry) Dense() *mat.Dense { return e.m }

// Size returns the current N.
func (e *MatrixEntry) Size() int { return e.n }

// Grow extends the entry from its current size to newN, assembling only
// the rows/columns whose index is >= newN-k (spec.md §4.3 update policy).
// assemble(i, j) computes a_{q,m}(w_j, w_i) for the requested indices; the
// top-left (newN-k)x(newN-k) block is copied unchanged.
func (e *MatrixEntry) Grow(newN, k int, assemble func(i, j int) float64) {
	grown := mat.NewDense(newN, newN, nil)
	oldN := e.n
	if e.m != nil {
		grown.Slice(0, oldN, 0, oldN).(*mat.Dense).Copy(e.m)
	}
	boundary := newN - k
	for i := 0; i < newN; i++ {
		for j := 0; j < newN; j++ {
			if i < boundary && j < boundary {
				continue // preserved from the old block
			}
			grown.Set(i, j, assemble(i, j))
		}
	}
	e.m = grown
	e.n = newN
}

// VectorEntry is one term of a reduced right-hand-side cache (F̂_{q,m},
// L̂_{q,m}, R̂_{q,m}): an N-vector grown by append (spec.md §3: "extended by
// k entries per greedy step").
type VectorEntry struct {
	v *mat.VecDense
	n int
}

// NewVectorEntry returns an empty (length 0) entry.
func NewVectorEntry() *VectorEntry { return &VectorEntry{} }

// VecDense returns the current N-vector.
func (e *VectorEntry) VecDense() *mat.VecDense { return e.v }

// Size returns the current N.
func (e *VectorEntry) Size() int { return e.n }

// Grow extends the entry to newN entries, assembling only indices
// >= newN-k via assemble(i).
func (e *VectorEntry) Grow(newN, k int, assemble func(i int) float64) {
	grown := mat.NewVecDense(newN, nil)
	oldN := e.n
	for i := 0; i < oldN; i++ {
		grown.SetVec(i, e.v.AtVec(i))
	}
	for i := newN - k; i < newN; i++ {
		grown.SetVec(i, assemble(i))
	}
	e.v = grown
	e.n = newN
}

// MatrixTable is the (q, m)-indexed collection of MatrixEntry values for
// one affine-decomposed bilinear form (spec.md §4.3: "Â_{q,m}"). mMax(q)
// varies per q (it is ragged), so the inner dimension is a plain slice
// rather than a fixed-width matrix.
type MatrixTable struct {
	entries [][]*MatrixEntry
}

// NewMatrixTable allocates Q terms with mMax[q] sub-terms each, all empty.
func NewMatrixTable(mMax []int) *MatrixTable {
	t := &MatrixTable{entries: make([][]*MatrixEntry, len(mMax))}
	for q, m := range mMax {
		t.entries[q] = make([]*MatrixEntry, m)
		for i := range t.entries[q] {
			t.entries[q][i] = NewMatrixEntry()
		}
	}
	return t
}

// Q returns the number of terms.
func (t *MatrixTable) Q() int { return len(t.entries) }

// MMax returns the number of sub-terms for term q.
func (t *MatrixTable) MMax(q int) int { return len(t.entries[q]) }

// At returns the (q, m) entry.
func (t *MatrixTable) At(q, m int) *MatrixEntry { return t.entries[q][m] }

// VectorTable is the (q, m)-indexed collection of VectorEntry values for
// one affine-decomposed linear form (F̂, L̂, R̂).
type VectorTable struct {
	entries [][]*VectorEntry
}

// NewVectorTable allocates Q terms with mMax[q] sub-terms each.
func NewVectorTable(mMax []int) *VectorTable {
	t := &VectorTable{entries: make([][]*VectorEntry, len(mMax))}
	for q, m := range mMax {
		t.entries[q] = make([]*VectorEntry, m)
		for i := range t.entries[q] {
			t.entries[q][i] = NewVectorEntry()
		}
	}
	return t
}

func (t *VectorTable) Q() int                   { return len(t.entries) }
func (t *VectorTable) MMax(q int) int           { return len(t.entries[q]) }
func (t *VectorTable) At(q, m int) *VectorEntry { return t.entries[q][m] }

// AssembleMatrix evaluates Sum_q Sum_m beta[q][m] * Ahat_{q,m} at the
// table's current reduced dimension N, the online Galerkin projection of
// spec.md §4.6.
func AssembleMatrix(t *MatrixTable, beta [][]float64, n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for q := 0; q < t.Q(); q++ {
		for m := 0; m < t.MMax(q); m++ {
			entry := t.At(q, m).Dense()
			if entry == nil {
				continue
			}
			out.Add(out, scaledDense(entry, beta[q][m]))
		}
	}
	return out
}

// AssembleVector evaluates Sum_q Sum_m beta[q][m] * Fhat_{q,m} at the
// table's current reduced dimension N.
func AssembleVector(t *VectorTable, beta [][]float64, n int) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for q := 0; q < t.Q(); q++ {
		for m := 0; m < t.MMax(q); m++ {
			entry := t.At(q, m).VecDense()
			if entry == nil {
				continue
			}
			out.AddScaledVec(out, beta[q][m], entry)
		}
	}
	return out
}

func scaledDense(a *mat.Dense, alpha float64) *mat.Dense {
	var out mat.Dense
	out.Scale(alpha, a)
	return &out
}
