// Package store defines the document database used for pointers, their
// supporting documents and compliance results.
package store

import (
	"context"

	"github.com/pkg/errors"

	"compliance/internal/domain"
)

// ErrNotFound is returned when a single record lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// FindPointer filters ListPointers. Nil fields match everything.
type FindPointer struct {
	ID       *string
	Year     *int
	Language *domain.Language
	Status   *domain.Status
}

// UpdatePointer sets the non-nil fields on the pointer with ID.
type UpdatePointer struct {
	ID                       string
	Name                     *string
	Objective                *string
	ComplianceRequirements   *string
	SupportingDocumentPoints *string
	Language                 *domain.Language
	ComplianceStatus         *domain.Status
	Year                     *int
}

// UpdateDocument sets the non-nil fields on the document with ID.
type UpdateDocument struct {
	ID   string
	Name *string
	Data []byte
}

// UpdateResult sets the non-nil fields on the compliance result with ID.
type UpdateResult struct {
	ID      string
	Status  *domain.Status
	Details *string
}

// Store is implemented by database drivers.
// Update and delete operations report the number of affected records.
type Store interface {
	CreatePointer(ctx context.Context, create *domain.Pointer) (string, error)
	ListPointers(ctx context.Context, find *FindPointer) ([]*domain.Pointer, error)
	GetPointer(ctx context.Context, id string) (*domain.Pointer, error)
	UpdatePointer(ctx context.Context, update *UpdatePointer) (int64, error)
	DeletePointer(ctx context.Context, id string) (int64, error)

	CreateDocument(ctx context.Context, pointerID, name string, data []byte) (string, error)
	ListDocuments(ctx context.Context, pointerID string) ([]*domain.SupportingDocument, error)
	GetDocument(ctx context.Context, id string) (*domain.SupportingDocument, error)
	UpdateDocument(ctx context.Context, update *UpdateDocument) (int64, error)
	DeleteDocument(ctx context.Context, id string) (int64, error)
	DeleteDocumentsByPointer(ctx context.Context, pointerID string) (int64, error)

	CreateResult(ctx context.Context, pointerID string, status domain.Status, details string) (string, error)
	ListResults(ctx context.Context, pointerID string) ([]*domain.ComplianceResult, error)
	UpdateResult(ctx context.Context, update *UpdateResult) (int64, error)
	DeleteResult(ctx context.Context, id string) (int64, error)
	DeleteResultsByPointer(ctx context.Context, pointerID string) (int64, error)

	Close() error
}
