package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a verification batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusCompleted, BatchStatusFailed:
		return true
	}
	return false
}

// Category separates the two verifiable item kinds, each with its own quota
// counters.
type Category string

const (
	CategoryNumbers   Category = "numbers"
	CategoryAddresses Category = "addresses"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryNumbers, CategoryAddresses:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// Batch is one user-submitted list of items processed as a unit.
//
// DeclaredItems holds the full canonical item list so an interrupted batch can
// be resumed after a restart without re-upload. ProcessedNumbers is a
// checkpoint hint for display only; the authoritative record of what has been
// processed is the set of Result rows.
type Batch struct {
	ID               string
	OwnerID          string
	Category         Category
	DeclaredItems    []string
	TotalNumbers     int
	ProcessedNumbers int
	ValidNumbers     int
	InvalidNumbers   int
	Status           BatchStatus
	CreatedAt        time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}
