// Package persistence implements ports.Store as a pair of versioned,
// explicit-field JSON files per archive: a "reduced" archive with
// everything an online query needs (operator tables, residual tables,
// convergence history), and an optional "basis" archive with the raw
// truth-space snapshots needed only to resume or extend an offline run
// (spec.md §4.11, §9 redesign note: replace the teacher-model's opaque
// binary blob with a schema-versioned, explicit-field format).
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gocrb/domain/core"
	"gocrb/domain/crb"
	"gocrb/domain/parameter"
	"gocrb/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// ElementCodec encodes and decodes the opaque truth-space elements of a
// crb.Basis. It is supplied by whichever truth-model adapter owns the
// concrete element representation; FileStore never inspects a
// crb.Element itself. A FileStore built without a codec still satisfies
// the online self-containment invariant -- it simply cannot persist or
// reload the basis snapshots needed to resume an offline run.
type ElementCodec interface {
	Encode(el crb.Element) ([]byte, error)
	Decode(data []byte) (crb.Element, error)
}

// FileStore is the on-disk ports.Store implementation.
type FileStore struct {
	dir   string
	codec ElementCodec
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
// codec may be nil, in which case Save/Load skip the basis archive.
func NewFileStore(dir string, codec ElementCodec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IOError(fmt.Sprintf("persistence: cannot create archive directory %s: %v", dir, err))
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

func (s *FileStore) reducedPath(id string) string { return filepath.Join(s.dir, id+".crbdb.json") }
func (s *FileStore) basisPath(id string) string   { return filepath.Join(s.dir, id+".basis.json") }

// Save writes the Database's reduced-space state and, if a codec is
// configured, the truth-space basis snapshots.
func (s *FileStore) Save(archiveID string, db *crb.Database) error {
	dto := toDTO(db)
	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return errors.IOError(fmt.Sprintf("persistence: encode archive %s: %v", archiveID, err))
	}
	if err := os.WriteFile(s.reducedPath(archiveID), data, 0o644); err != nil {
		return errors.IOError(fmt.Sprintf("persistence: write archive %s: %v", archiveID, err))
	}

	if s.codec != nil {
		basisDTO, err := toBasisDTO(db, s.codec)
		if err != nil {
			return err
		}
		bdata, err := json.Marshal(basisDTO)
		if err != nil {
			return errors.IOError(fmt.Sprintf("persistence: encode basis archive %s: %v", archiveID, err))
		}
		if err := os.WriteFile(s.basisPath(archiveID), bdata, 0o644); err != nil {
			return errors.IOError(fmt.Sprintf("persistence: write basis archive %s: %v", archiveID, err))
		}
	}
	return nil
}

// Load reads back a Database. If a basis archive and codec are both
// available, the basis is reloaded too; otherwise the Database comes
// back with an empty Basis, which is sufficient for online queries per
// the self-containment invariant but not for resuming the offline loop.
func (s *FileStore) Load(archiveID string) (*crb.Database, error) {
	data, err := os.ReadFile(s.reducedPath(archiveID))
	if os.IsNotExist(err) {
		return nil, errors.WithCode(errors.CodeIOError, core.ErrArchiveMissing)
	}
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("persistence: read archive %s: %v", archiveID, err))
	}

	var dto databaseDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, errors.IOError(fmt.Sprintf("persistence: decode archive %s: %v", archiveID, err))
	}
	if dto.SchemaVersion > crb.SchemaVersion {
		return nil, errors.WithCode(errors.CodeIOError, core.ErrVersionMismatch)
	}
	db := fromDTO(&dto)

	if s.codec != nil {
		if bdata, err := os.ReadFile(s.basisPath(archiveID)); err == nil {
			var bdto basisDTO
			if err := json.Unmarshal(bdata, &bdto); err != nil {
				return nil, errors.IOError(fmt.Sprintf("persistence: decode basis archive %s: %v", archiveID, err))
			}
			if err := applyBasisDTO(db, &bdto, s.codec); err != nil {
				return nil, err
			}
		}
	}
	return db, nil
}

// List returns the archive ids currently on disk, lexically sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("persistence: list %s: %v", s.dir, err))
	}
	var ids []string
	for _, e := range entries {
		const suffix = ".crbdb.json"
		if len(e.Name()) > len(suffix) && e.Name()[len(e.Name())-len(suffix):] == suffix {
			ids = append(ids, e.Name()[:len(e.Name())-len(suffix)])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes both archive files for archiveID. Missing files are not
// an error.
func (s *FileStore) Delete(archiveID string) error {
	for _, p := range []string{s.reducedPath(archiveID), s.basisPath(archiveID)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.IOError(fmt.Sprintf("persistence: delete %s: %v", p, err))
		}
	}
	return nil
}

// --- DTOs: explicit, versioned, JSON-friendly mirrors of crb.Database ---

type databaseDTO struct {
	SchemaVersion int                    `json:"schema_version"`
	Dimension     int                    `json:"dimension"`
	Operators     operatorSetDTO         `json:"operators"`
	Residual      residualTablesDTO      `json:"residual"`
	Convergence   []crb.ConvergencePoint `json:"convergence"`
	ModeCountMap  map[string]int         `json:"mode_count_map"`
	ErrorMode     int                    `json:"error_mode"`
	UseNewton     bool                   `json:"use_newton"`

	DualDimension int               `json:"dual_dimension,omitempty"`
	DualResidual  residualTablesDTO `json:"dual_residual,omitempty"`
	Variance      varianceDTO       `json:"variance,omitempty"`
}

type operatorSetDTO struct {
	A [][]denseDTO `json:"a"`
	M [][]denseDTO `json:"m,omitempty"`
	F [][]vecDTO   `json:"f"`
	L [][]vecDTO   `json:"l"`

	// ADu, APrDu, FDu mirror crb.OperatorSet's dual/adjoint couplings;
	// all empty unless the archive's Database has a dual basis.
	ADu   [][]denseDTO `json:"a_du,omitempty"`
	APrDu [][]denseDTO `json:"a_pr_du,omitempty"`
	FDu   [][]vecDTO   `json:"f_du,omitempty"`
}

// varianceDTO mirrors crb.VarianceTables: one N×N Phi matrix per affine
// output term, empty unless variance certification is enabled.
type varianceDTO struct {
	Phi []denseDTO `json:"phi,omitempty"`
}

type denseDTO struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type vecDTO struct {
	Data []float64 `json:"data"`
}

type residualTablesDTO struct {
	C0     []float64  `json:"c0"`
	Lambda []vecDTO   `json:"lambda,omitempty"`
	Gamma  []denseDTO `json:"gamma,omitempty"`
	Cmf    []vecDTO   `json:"cmf,omitempty"`
	Cma    []denseDTO `json:"cma,omitempty"`
	Cmm    []denseDTO `json:"cmm,omitempty"`
}

type basisDTO struct {
	Elements []json.RawMessage `json:"elements"`
	Params   [][]float64       `json:"params"`

	DualElements []json.RawMessage `json:"dual_elements,omitempty"`
	DualParams   [][]float64       `json:"dual_params,omitempty"`
}

func toDense(m *mat.Dense) denseDTO {
	if m == nil {
		return denseDTO{}
	}
	r, c := m.Dims()
	return denseDTO{Rows: r, Cols: c, Data: append([]float64(nil), m.RawMatrix().Data...)}
}

func fromDense(d denseDTO) *mat.Dense {
	if d.Rows == 0 || d.Cols == 0 {
		return nil
	}
	return mat.NewDense(d.Rows, d.Cols, append([]float64(nil), d.Data...))
}

func toVec(v *mat.VecDense) vecDTO {
	if v == nil {
		return vecDTO{}
	}
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return vecDTO{Data: data}
}

func fromVec(d vecDTO) *mat.VecDense {
	if len(d.Data) == 0 {
		return nil
	}
	return mat.NewVecDense(len(d.Data), append([]float64(nil), d.Data...))
}

func toDTO(db *crb.Database) *databaseDTO {
	dto := &databaseDTO{
		SchemaVersion: crb.SchemaVersion,
		Dimension:     db.Dimension(),
		Convergence:   db.Convergence.Points(),
		ModeCountMap:  map[string]int{},
		ErrorMode:     int(db.ErrorMode),
		UseNewton:     db.UseNewton,
	}
	for n, c := range db.ModeCountMap {
		dto.ModeCountMap[fmt.Sprintf("%d", n)] = c
	}
	dto.Operators.A = matrixTableDTO(db.Operators.A)
	dto.Operators.F = vectorTableDTO(db.Operators.F)
	dto.Operators.L = vectorTableDTO(db.Operators.L)
	if db.Operators.M != nil {
		dto.Operators.M = matrixTableDTO(db.Operators.M)
	}
	if db.Residual != nil {
		dto.Residual = toResidualDTO(db.Residual)
	}
	if db.DualBasis != nil {
		dto.DualDimension = db.DualBasis.Size()
		dto.Operators.ADu = matrixTableDTO(db.Operators.ADu)
		dto.Operators.APrDu = matrixTableDTO(db.Operators.APrDu)
		dto.Operators.FDu = vectorTableDTO(db.Operators.FDu)
		if db.DualResidual != nil {
			dto.DualResidual = toResidualDTO(db.DualResidual)
		}
	}
	if db.Variance != nil {
		for q := 0; q < db.Variance.Q(); q++ {
			dto.Variance.Phi = append(dto.Variance.Phi, toDense(db.Variance.Phi(q).Dense()))
		}
	}
	return dto
}

// toResidualDTO flattens a ResidualTables into its JSON mirror, in the
// same (q1,m1,q2,m2) order RaggedShape.Indices() enumerates, so the
// online query path stays self-contained after a reload: the
// self-containment invariant covers the error estimator, not just the
// Galerkin operators.
func toResidualDTO(rt *crb.ResidualTables) residualTablesDTO {
	var dto residualTablesDTO

	for _, idx := range rt.C0.Shape().Indices() {
		v, _ := rt.C0.Get(idx.Q1, idx.M1, idx.Q2, idx.M2)
		dto.C0 = append(dto.C0, v)
	}
	for _, idx := range rt.Lambda.Shape().Indices() {
		dto.Lambda = append(dto.Lambda, toVec(rt.Lambda.At(idx.Q1, idx.M1, idx.Q2, idx.M2).VecDense()))
	}
	for _, idx := range rt.Gamma.Shape().Indices() {
		dto.Gamma = append(dto.Gamma, toDense(rt.Gamma.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Dense()))
	}
	if rt.IsTransient() {
		for _, idx := range rt.Cmf.Shape().Indices() {
			dto.Cmf = append(dto.Cmf, toVec(rt.Cmf.At(idx.Q1, idx.M1, idx.Q2, idx.M2).VecDense()))
		}
		for _, idx := range rt.Cma.Shape().Indices() {
			dto.Cma = append(dto.Cma, toDense(rt.Cma.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Dense()))
		}
		for _, idx := range rt.Cmm.Shape().Indices() {
			dto.Cmm = append(dto.Cmm, toDense(rt.Cmm.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Dense()))
		}
	}
	return dto
}

// applyResidualDTO reconstructs a freshly allocated ResidualTables (over
// the same affine-term counts the operator tables were rebuilt with) from
// its JSON mirror.
func applyResidualDTO(rt *crb.ResidualTables, dto residualTablesDTO) {
	for i, idx := range rt.C0.Shape().Indices() {
		if i < len(dto.C0) {
			rt.C0.Set(idx.Q1, idx.M1, idx.Q2, idx.M2, dto.C0[i])
		}
	}
	for i, idx := range rt.Lambda.Shape().Indices() {
		if i >= len(dto.Lambda) || len(dto.Lambda[i].Data) == 0 {
			continue
		}
		data := dto.Lambda[i].Data
		rt.Lambda.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Grow(len(data), len(data), func(n int) float64 { return data[n] })
	}
	for i, idx := range rt.Gamma.Shape().Indices() {
		if i >= len(dto.Gamma) || dto.Gamma[i].Rows == 0 {
			continue
		}
		d := dto.Gamma[i]
		rt.Gamma.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Grow(d.Rows, d.Rows, func(a, b int) float64 { return d.Data[a*d.Cols+b] })
	}
	if !rt.IsTransient() {
		return
	}
	for i, idx := range rt.Cmf.Shape().Indices() {
		if i >= len(dto.Cmf) || len(dto.Cmf[i].Data) == 0 {
			continue
		}
		data := dto.Cmf[i].Data
		rt.Cmf.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Grow(len(data), len(data), func(n int) float64 { return data[n] })
	}
	for i, idx := range rt.Cma.Shape().Indices() {
		if i >= len(dto.Cma) || dto.Cma[i].Rows == 0 {
			continue
		}
		d := dto.Cma[i]
		rt.Cma.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Grow(d.Rows, d.Rows, func(a, b int) float64 { return d.Data[a*d.Cols+b] })
	}
	for i, idx := range rt.Cmm.Shape().Indices() {
		if i >= len(dto.Cmm) || dto.Cmm[i].Rows == 0 {
			continue
		}
		d := dto.Cmm[i]
		rt.Cmm.At(idx.Q1, idx.M1, idx.Q2, idx.M2).Grow(d.Rows, d.Rows, func(a, b int) float64 { return d.Data[a*d.Cols+b] })
	}
}

func matrixTableDTO(t *crb.MatrixTable) [][]denseDTO {
	out := make([][]denseDTO, t.Q())
	for q := 0; q < t.Q(); q++ {
		out[q] = make([]denseDTO, t.MMax(q))
		for m := 0; m < t.MMax(q); m++ {
			out[q][m] = toDense(t.At(q, m).Dense())
		}
	}
	return out
}

func vectorTableDTO(t *crb.VectorTable) [][]vecDTO {
	out := make([][]vecDTO, t.Q())
	for q := 0; q < t.Q(); q++ {
		out[q] = make([]vecDTO, t.MMax(q))
		for m := 0; m < t.MMax(q); m++ {
			out[q][m] = toVec(t.At(q, m).VecDense())
		}
	}
	return out
}

func fromDTO(dto *databaseDTO) *crb.Database {
	mMaxA := make([]int, len(dto.Operators.A))
	for q := range mMaxA {
		mMaxA[q] = len(dto.Operators.A[q])
	}
	mMaxF := make([]int, len(dto.Operators.F))
	for q := range mMaxF {
		mMaxF[q] = len(dto.Operators.F[q])
	}
	mMaxL := make([]int, len(dto.Operators.L))
	for q := range mMaxL {
		mMaxL[q] = len(dto.Operators.L[q])
	}
	var mMaxM []int
	if dto.Operators.M != nil {
		mMaxM = make([]int, len(dto.Operators.M))
		for q := range mMaxM {
			mMaxM[q] = len(dto.Operators.M[q])
		}
	}

	ops := &crb.OperatorSet{
		A: crb.NewMatrixTable(mMaxA),
		F: crb.NewVectorTable(mMaxF),
		L: crb.NewVectorTable(mMaxL),
	}
	n := dto.Dimension
	for q, row := range dto.Operators.A {
		for m, d := range row {
			dense := fromDense(d)
			if dense != nil {
				ops.A.At(q, m).Grow(n, n, func(i, j int) float64 { return dense.At(i, j) })
			}
		}
	}
	for q, row := range dto.Operators.F {
		for m, v := range row {
			vec := fromVec(v)
			if vec != nil {
				ops.F.At(q, m).Grow(n, n, func(i int) float64 { return vec.AtVec(i) })
			}
		}
	}
	for q, row := range dto.Operators.L {
		for m, v := range row {
			vec := fromVec(v)
			if vec != nil {
				ops.L.At(q, m).Grow(n, n, func(i int) float64 { return vec.AtVec(i) })
			}
		}
	}
	if mMaxM != nil {
		ops.M = crb.NewMatrixTable(mMaxM)
		for q, row := range dto.Operators.M {
			for m, d := range row {
				dense := fromDense(d)
				if dense != nil {
					ops.M.At(q, m).Grow(n, n, func(i, j int) float64 { return dense.At(i, j) })
				}
			}
		}
	}

	hasDual := len(dto.Operators.ADu) > 0
	varianceEnabled := len(dto.Variance.Phi) > 0
	db := crb.NewDatabase(ops, mMaxF, mMaxA, mMaxM, hasDual, varianceEnabled, mMaxL)
	db.ErrorMode = crb.ErrorMode(dto.ErrorMode)
	db.UseNewton = dto.UseNewton
	if len(dto.Residual.C0) > 0 {
		applyResidualDTO(db.Residual, dto.Residual)
	}
	for _, p := range dto.Convergence {
		db.Convergence.Record(p)
	}
	for k, v := range dto.ModeCountMap {
		var idx int
		fmt.Sscanf(k, "%d", &idx)
		db.ModeCountMap[idx] = v
	}

	if hasDual {
		nDu := dto.DualDimension
		for q, row := range dto.Operators.ADu {
			for m, d := range row {
				if dense := fromDense(d); dense != nil {
					db.Operators.ADu.At(q, m).Grow(nDu, nDu, func(i, j int) float64 { return dense.At(i, j) })
				}
			}
		}
		for q, row := range dto.Operators.APrDu {
			for m, d := range row {
				if dense := fromDense(d); dense != nil {
					db.Operators.APrDu.At(q, m).Grow(nDu, nDu, func(i, j int) float64 { return dense.At(i, j) })
				}
			}
		}
		for q, row := range dto.Operators.FDu {
			for m, v := range row {
				if vec := fromVec(v); vec != nil {
					db.Operators.FDu.At(q, m).Grow(nDu, nDu, func(i int) float64 { return vec.AtVec(i) })
				}
			}
		}
		if len(dto.DualResidual.C0) > 0 {
			applyResidualDTO(db.DualResidual, dto.DualResidual)
		}
	}

	if varianceEnabled {
		for q, d := range dto.Variance.Phi {
			if dense := fromDense(d); dense != nil {
				rows, _ := dense.Dims()
				db.Variance.Phi(q).Grow(rows, rows, func(i, j int) float64 { return dense.At(i, j) })
			}
		}
	}
	return db
}

func toBasisDTO(db *crb.Database, codec ElementCodec) (*basisDTO, error) {
	dto := &basisDTO{}
	for i := 0; i < db.Basis.Size(); i++ {
		enc, err := codec.Encode(db.Basis.At(i))
		if err != nil {
			return nil, errors.IOError(fmt.Sprintf("persistence: encode basis element %d: %v", i, err))
		}
		dto.Elements = append(dto.Elements, json.RawMessage(enc))
		dto.Params = append(dto.Params, db.Basis.ParameterAt(i).Values())
	}
	if db.DualBasis != nil {
		for i := 0; i < db.DualBasis.Size(); i++ {
			enc, err := codec.Encode(db.DualBasis.At(i))
			if err != nil {
				return nil, errors.IOError(fmt.Sprintf("persistence: encode dual basis element %d: %v", i, err))
			}
			dto.DualElements = append(dto.DualElements, json.RawMessage(enc))
			dto.DualParams = append(dto.DualParams, db.DualBasis.ParameterAt(i).Values())
		}
	}
	return dto, nil
}

func applyBasisDTO(db *crb.Database, dto *basisDTO, codec ElementCodec) error {
	for i, raw := range dto.Elements {
		el, err := codec.Decode(raw)
		if err != nil {
			return errors.IOError(fmt.Sprintf("persistence: decode basis element %d: %v", i, err))
		}
		mu := parameter.New(dto.Params[i])
		db.Basis.Append(el, mu)
	}
	if db.DualBasis != nil {
		for i, raw := range dto.DualElements {
			el, err := codec.Decode(raw)
			if err != nil {
				return errors.IOError(fmt.Sprintf("persistence: decode dual basis element %d: %v", i, err))
			}
			mu := parameter.New(dto.DualParams[i])
			db.DualBasis.Append(el, mu)
		}
	}
	return nil
}
