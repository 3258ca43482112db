package ports

import (
	"gocrb/domain/crb"
)

// Store persists and reloads a completed or in-progress offline run.
// Reloading a Store's output must be sufficient on its own to answer
// online queries, with no further dependency on the truth model (spec.md
// §3 self-containment invariant) -- the one invariant that ruled out a
// SQL-backed implementation in favor of a self-contained on-disk archive
// (see DESIGN.md).
type Store interface {
	// Save writes db under the given archive id, creating or overwriting
	// it. The truth-space Basis/DualBasis elements are written to a
	// sibling archive keyed the same way, since they are needed only by
	// the offline side (resuming a run, exporting snapshots) and not by
	// online queries (spec.md §4.11).
	Save(archiveID string, db *crb.Database) error

	// Load reads back a previously saved Database. It returns
	// core.ErrArchiveMissing if no archive exists under archiveID, and
	// core.ErrVersionMismatch if the archive's schema version is newer
	// than this binary's crb.SchemaVersion.
	Load(archiveID string) (*crb.Database, error)

	// List returns the archive ids currently stored, in lexical order.
	List() ([]string, error)

	// Delete removes a previously saved archive. It is not an error to
	// delete an archive id that does not exist.
	Delete(archiveID string) error
}
