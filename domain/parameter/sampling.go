package parameter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gocrb/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampling Xi is an ordered, finite sequence of parameters (spec.md §4.1,
// §3). A sampling built as the complement of a selected subsample carries
// a link back to its super-sampling and the index map used to recover the
// original positions.
type Sampling struct {
	space *Space
	mus   []Parameter

	super    *Sampling
	indexMap []int // indexMap[i] is mus[i]'s position in super, when super != nil
}

// NewSampling wraps an explicit, ordered list of parameters.
func NewSampling(space *Space, mus []Parameter) *Sampling {
	cp := make([]Parameter, len(mus))
	copy(cp, mus)
	return &Sampling{space: space, mus: cp}
}

// Size returns |Xi|.
func (s *Sampling) Size() int { return len(s.mus) }

// At returns the i-th parameter. Out-of-bounds lookups are fatal per
// spec.md §4.1.
func (s *Sampling) At(i int) Parameter {
	if i < 0 || i >= len(s.mus) {
		panic(fmt.Sprintf("parameter.Sampling.At: index %d out of bounds (size %d)", i, len(s.mus)))
	}
	return s.mus[i]
}

// All returns a defensive copy of the underlying sequence.
func (s *Sampling) All() []Parameter {
	cp := make([]Parameter, len(s.mus))
	copy(cp, s.mus)
	return cp
}

// Append adds mu to the end of the sampling, extending it monotonically
// (spec.md §3: "created once per study; extended monotonically").
func (s *Sampling) Append(mu Parameter) {
	s.mus = append(s.mus, mu)
}

// compare is the deterministic total order used by Min/Max: lexicographic
// on coordinates, ties broken by lowest sampling index (spec.md §5:
// "ties are broken by lowest sampling index").
func compare(a, b Parameter) int {
	for i := 0; i < a.Dimension(); i++ {
		if a.At(i) < b.At(i) {
			return -1
		}
		if a.At(i) > b.At(i) {
			return 1
		}
	}
	return 0
}

// Min returns the coordinate-wise smallest parameter in the sampling under
// lexicographic order, with ties broken by lowest index.
func (s *Sampling) Min() (Parameter, int) {
	return s.extremum(-1)
}

// Max returns the coordinate-wise largest parameter, ties broken by lowest
// index.
func (s *Sampling) Max() (Parameter, int) {
	return s.extremum(1)
}

func (s *Sampling) extremum(sign int) (Parameter, int) {
	if len(s.mus) == 0 {
		panic("parameter.Sampling: extremum of empty sampling")
	}
	best := 0
	for i := 1; i < len(s.mus); i++ {
		if compare(s.mus[i], s.mus[best])*sign > 0 {
			best = i
		}
	}
	return s.mus[best], best
}

// Complement returns a new Sampling over the elements of super that do not
// appear (by value) in s, recording the super-sampling link and index map
// (spec.md §4.1, §3: "optional link to a super-sampling and an index map").
func (s *Sampling) Complement(super *Sampling) *Sampling {
	selected := make(map[string]bool, len(s.mus))
	for _, mu := range s.mus {
		selected[mu.String()] = true
	}

	comp := &Sampling{space: super.space, super: super}
	for i, mu := range super.mus {
		if selected[mu.String()] {
			continue
		}
		comp.mus = append(comp.mus, mu)
		comp.indexMap = append(comp.indexMap, i)
	}
	return comp
}

// Contains reports whether mu appears (by value) in the sampling. Used by
// the no-residual greedy mode to reject an already-selected mu (spec.md
// §9 open question: kept as a linear scan, see DESIGN.md).
func (s *Sampling) Contains(mu Parameter) bool {
	for _, m := range s.mus {
		if m.Equal(mu) {
			return true
		}
	}
	return false
}

// SuperIndex maps a position in this (complement) sampling back to its
// position in the super-sampling it was built from. Returns -1 if this
// sampling has no super-sampling link.
func (s *Sampling) SuperIndex(i int) int {
	if s.super == nil {
		return -1
	}
	return s.indexMap[i]
}

// --- Generators (spec.md §4.1: random / log-equidistributed / equidistributed) ---

// NewRandomSampling draws N parameters uniformly at random from the
// coordinate-wise bounds of space, using gonum's distuv.Uniform per
// coordinate for a seeded, reproducible draw.
func NewRandomSampling(space *Space, n int, seed uint64) *Sampling {
	src := newSource(seed)
	mus := make([]Parameter, n)
	for i := 0; i < n; i++ {
		v := make([]float64, space.Dimension())
		for d := 0; d < space.Dimension(); d++ {
			u := distuv.Uniform{Min: space.Min().At(d), Max: space.Max().At(d), Src: src}
			v[d] = u.Rand()
		}
		mus[i] = New(v)
	}
	return NewSampling(space, mus)
}

// NewEquidistributedSampling builds a deterministic grid with (at least) N
// points, spaced uniformly per coordinate: each dimension is split into
// ceil(N^(1/p)) equal steps and the full tensor grid is generated, then
// truncated to the first N points in row-major coordinate order. This
// resolves the spec's "uniformly spaced per coordinate" wording for p > 1,
// where a literal N-point-per-axis grid would not yield exactly N points
// (see DESIGN.md).
func NewEquidistributedSampling(space *Space, n int) *Sampling {
	return NewSampling(space, tensorGrid(space, n, false))
}

// NewLogEquidistributedSampling is the log-spaced analogue of
// NewEquidistributedSampling: each coordinate is split into equal steps in
// log-space. Bounds must be strictly positive.
func NewLogEquidistributedSampling(space *Space, n int) (*Sampling, error) {
	for d := 0; d < space.Dimension(); d++ {
		if space.Min().At(d) <= 0 {
			return nil, errors.ConfigInvalid(fmt.Sprintf("log-equidistributed sampling requires strictly positive bounds, coordinate %d has min=%g", d, space.Min().At(d)))
		}
	}
	return NewSampling(space, tensorGrid(space, n, true)), nil
}

func tensorGrid(space *Space, n int, logSpaced bool) []Parameter {
	p := space.Dimension()
	if n < 1 {
		return nil
	}
	perAxis := ceilRoot(n, p)
	if perAxis < 1 {
		perAxis = 1
	}

	axisValues := make([][]float64, p)
	for d := 0; d < p; d++ {
		lo, hi := space.Min().At(d), space.Max().At(d)
		axisValues[d] = make([]float64, perAxis)
		for k := 0; k < perAxis; k++ {
			var t float64
			if perAxis == 1 {
				t = 0
			} else {
				t = float64(k) / float64(perAxis-1)
			}
			if logSpaced {
				loLog, hiLog := logf(lo), logf(hi)
				axisValues[d][k] = expf(loLog + t*(hiLog-loLog))
			} else {
				axisValues[d][k] = lo + t*(hi-lo)
			}
		}
	}

	total := 1
	for range axisValues {
		total *= perAxis
	}
	out := make([]Parameter, 0, total)
	idx := make([]int, p)
	for c := 0; c < total; c++ {
		v := make([]float64, p)
		for d := 0; d < p; d++ {
			v[d] = axisValues[d][idx[d]]
		}
		out = append(out, New(v))

		for d := p - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < perAxis {
				break
			}
			idx[d] = 0
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// --- Plain-text I/O (spec.md §4.1, §6: "mu_i= [ v_0 , v_1 , ... ]") ---

// WriteFile writes one "mu_i= [ v_0 , v_1 , ... , v_{p-1} ]" line per
// parameter, in order.
func (s *Sampling) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.IOError(fmt.Sprintf("sampling: cannot create %s: %v", path, err))
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, mu := range s.mus {
		fmt.Fprintf(w, "mu_%d= %s\n", i, mu.String())
	}
	return w.Flush()
}

// ReadSamplingFile parses the plain-text sampling format written by
// WriteFile into a Sampling over the given space.
func ReadSamplingFile(space *Space, path string) (*Sampling, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("sampling: cannot open %s: %v", path, err))
	}
	defer f.Close()

	var mus []Parameter
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		mu, err := parseLine(line)
		if err != nil {
			return nil, errors.IOError(fmt.Sprintf("sampling: malformed line %q in %s: %v", line, path, err))
		}
		mus = append(mus, mu)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.IOError(fmt.Sprintf("sampling: read error on %s: %v", path, err))
	}
	if len(mus) == 0 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("sampling file %s is empty", path))
	}
	return NewSampling(space, mus), nil
}

func parseLine(line string) (Parameter, error) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return Parameter{}, fmt.Errorf("missing '='")
	}
	rest := strings.TrimSpace(line[eq+1:])
	rest = strings.TrimPrefix(rest, "[")
	rest = strings.TrimSuffix(rest, "]")
	parts := strings.Split(rest, ",")
	v := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Parameter{}, fmt.Errorf("invalid coordinate %q: %w", p, err)
		}
		v = append(v, f)
	}
	return New(v), nil
}
