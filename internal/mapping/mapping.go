// Package mapping holds the id-correspondence records that make event
// processing idempotent: at most one target-system entity per distinct
// source-system change. The store is the only place that invariant is
// adjudicated, so sourceID carries a uniqueness constraint and duplicate
// creation surfaces as a distinct conflict error.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Mapping struct {
	SourceID    string    `json:"sourceId"`
	TargetID    string    `json:"targetId"`
	MappingType string    `json:"mappingType"`
	CreatedAt   time.Time `json:"createdAt"`
}

var ErrNotFound = errors.New("mapping not found")

// ConflictError reports that a mapping for the same sourceID already
// exists, typically a race between two deliveries of the same event.
type ConflictError struct {
	Existing  Mapping
	Attempted Mapping
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("mapping for source id %s already exists (target %s, attempted %s)",
		e.Attempted.SourceID, e.Existing.TargetID, e.Attempted.TargetID)
}

// IsConflict reports whether err is a duplicate-mapping conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

type Store interface {
	// Get returns the mapping for sourceID, or ErrNotFound.
	Get(ctx context.Context, sourceID string) (Mapping, error)
	// Create persists a new mapping. Returns *ConflictError when a
	// record for the same sourceID already exists.
	Create(ctx context.Context, m Mapping) error
	// Delete removes the mapping for sourceID. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, sourceID string) error
}
