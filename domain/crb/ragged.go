package crb

// RaggedShape describes the ragged 4-index (q1, m1, q2, m2) layout shared
// by every residual-coupling table (C0, Lambda, Gamma, Cmf, Cma, Cmm). The
// teacher-model equivalent nests four levels of slices; this flattens the
// whole thing into one buffer addressed by a computed offset, per the
// redesign note against deeply nested ragged containers (spec.md §9).
type RaggedShape struct {
	mMax1, mMax2 []int
	prefix1      []int // prefix1[q] = sum of mMax1[0:q]
	prefix2      []int
	total1, total2 int
}

// NewRaggedShape builds the offset tables for the given per-term counts.
func NewRaggedShape(mMax1, mMax2 []int) RaggedShape {
	s := RaggedShape{mMax1: mMax1, mMax2: mMax2}
	s.prefix1 = make([]int, len(mMax1)+1)
	for q, m := range mMax1 {
		s.prefix1[q+1] = s.prefix1[q] + m
	}
	s.total1 = s.prefix1[len(mMax1)]

	s.prefix2 = make([]int, len(mMax2)+1)
	for q, m := range mMax2 {
		s.prefix2[q+1] = s.prefix2[q] + m
	}
	s.total2 = s.prefix2[len(mMax2)]
	return s
}

// Q1 / Q2 return the number of terms on each axis.
func (s RaggedShape) Q1() int { return len(s.mMax1) }
func (s RaggedShape) Q2() int { return len(s.mMax2) }

// MMax1 / MMax2 return the sub-term count for a given term.
func (s RaggedShape) MMax1(q int) int { return s.mMax1[q] }
func (s RaggedShape) MMax2(q int) int { return s.mMax2[q] }

// flat computes the single flat index for (q1, m1, q2, m2).
func (s RaggedShape) flat(q1, m1, q2, m2 int) int {
	i1 := s.prefix1[q1] + m1
	i2 := s.prefix2[q2] + m2
	return i1*s.total2 + i2
}

// Len returns the number of (q1,m1,q2,m2) slots.
func (s RaggedShape) Len() int { return s.total1 * s.total2 }

// RaggedIndex is one (q1, m1, q2, m2) quadruple, as produced by Indices.
type RaggedIndex struct{ Q1, M1, Q2, M2 int }

// Indices enumerates every valid (q1, m1, q2, m2) quadruple in flat order,
// for callers that must assemble or grow every slot (ResidualService
// precompute, spec.md §4.7).
func (s RaggedShape) Indices() []RaggedIndex {
	idx := make([]RaggedIndex, 0, s.Len())
	for q1 := range s.mMax1 {
		for m1 := 0; m1 < s.mMax1[q1]; m1++ {
			for q2 := range s.mMax2 {
				for m2 := 0; m2 < s.mMax2[q2]; m2++ {
					idx = append(idx, RaggedIndex{q1, m1, q2, m2})
				}
			}
		}
	}
	return idx
}

// ScalarRaggedTable holds N-independent scalar couplings, used for the
// C0 table of spec.md §4.7 (dual norms of the affine right-hand-side
// terms, which do not depend on the reduced dimension).
type ScalarRaggedTable struct {
	shape RaggedShape
	buf   []float64
	set   []bool
}

// NewScalarRaggedTable allocates a zeroed table over shape.
func NewScalarRaggedTable(shape RaggedShape) *ScalarRaggedTable {
	return &ScalarRaggedTable{shape: shape, buf: make([]float64, shape.Len()), set: make([]bool, shape.Len())}
}

// Shape returns the table's index layout.
func (t *ScalarRaggedTable) Shape() RaggedShape { return t.shape }

// Get returns the stored value and whether it has been set.
func (t *ScalarRaggedTable) Get(q1, m1, q2, m2 int) (float64, bool) {
	i := t.shape.flat(q1, m1, q2, m2)
	return t.buf[i], t.set[i]
}

// Set stores a value, computed once per (q1,m1,q2,m2) pair.
func (t *ScalarRaggedTable) Set(q1, m1, q2, m2 int, v float64) {
	i := t.shape.flat(q1, m1, q2, m2)
	t.buf[i] = v
	t.set[i] = true
}

// VectorRaggedTable holds N-vector couplings that grow with the reduced
// dimension, used for Lambda and Cmf of spec.md §4.7 (operator-vs-rhs
// and mass-vs-rhs couplings, each an N-vector per (q1,m1,q2,m2)).
type VectorRaggedTable struct {
	shape   RaggedShape
	entries []*VectorEntry
}

// NewVectorRaggedTable allocates one empty VectorEntry per slot.
func NewVectorRaggedTable(shape RaggedShape) *VectorRaggedTable {
	t := &VectorRaggedTable{shape: shape, entries: make([]*VectorEntry, shape.Len())}
	for i := range t.entries {
		t.entries[i] = NewVectorEntry()
	}
	return t
}

// Shape returns the table's index layout.
func (t *VectorRaggedTable) Shape() RaggedShape { return t.shape }

// At returns the entry at (q1, m1, q2, m2).
func (t *VectorRaggedTable) At(q1, m1, q2, m2 int) *VectorEntry {
	return t.entries[t.shape.flat(q1, m1, q2, m2)]
}

// MatrixRaggedTable holds N×N couplings, used for Gamma, Cma and Cmm of
// spec.md §4.7 (operator-vs-operator, mass-vs-operator and mass-vs-mass
// couplings).
type MatrixRaggedTable struct {
	shape   RaggedShape
	entries []*MatrixEntry
}

// NewMatrixRaggedTable allocates one empty MatrixEntry per slot.
func NewMatrixRaggedTable(shape RaggedShape) *MatrixRaggedTable {
	t := &MatrixRaggedTable{shape: shape, entries: make([]*MatrixEntry, shape.Len())}
	for i := range t.entries {
		t.entries[i] = NewMatrixEntry()
	}
	return t
}

// Shape returns the table's index layout.
func (t *MatrixRaggedTable) Shape() RaggedShape { return t.shape }

// At returns the entry at (q1, m1, q2, m2).
func (t *MatrixRaggedTable) At(q1, m1, q2, m2 int) *MatrixEntry {
	return t.entries[t.shape.flat(q1, m1, q2, m2)]
}
