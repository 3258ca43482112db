package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier.
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered
// generation, falling back to v4 if the v7 clock sequence is unavailable.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation.
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty.
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types.
type (
	// RunID identifies one offline greedy construction run.
	RunID ID
	// ArchiveID identifies a persisted CRB database (primary archive +
	// sibling basis archive share this identifier, spec.md §4.11).
	ArchiveID ID
)

func (id RunID) String() string     { return ID(id).String() }
func (id ArchiveID) String() string { return ID(id).String() }

// ParseRunID parses a string into RunID.
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ParseArchiveID parses a string into ArchiveID.
func ParseArchiveID(s string) (ArchiveID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("archive ID cannot be empty")
	}
	return ArchiveID(s), nil
}
