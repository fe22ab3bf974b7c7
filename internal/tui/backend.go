package tui

import (
	"context"

	"compliance/internal/app"
	"compliance/internal/compliance"
	"compliance/internal/domain"
	"compliance/internal/pointer"
	"compliance/internal/store"
)

// Backend is the TUI-facing subset of the application.
type Backend interface {
	Years() []int
	Languages() []string
	ListPointers(ctx context.Context, year int) ([]*domain.Pointer, error)
	Documents(ctx context.Context, pointerID string) ([]*domain.SupportingDocument, error)
	SavePointer(ctx context.Context, draft *pointer.Draft, uploads []pointer.Upload) (*domain.Pointer, error)
	DeletePointer(ctx context.Context, id string) error
	DeleteDocument(ctx context.Context, id string) error
	Check(ctx context.Context, pointerID string) (*compliance.Report, error)
	IndexKeys() ([]domain.IndexKey, error)
	Search(ctx context.Context, key domain.IndexKey, query string) ([]domain.SearchResult, error)
}

type appBackend struct {
	app *app.App
}

// NewBackend adapts a to the Backend interface.
func NewBackend(a *app.App) Backend {
	return &appBackend{app: a}
}

func (b *appBackend) Years() []int        { return b.app.Pointers.Years() }
func (b *appBackend) Languages() []string { return b.app.Pointers.Languages() }

func (b *appBackend) ListPointers(ctx context.Context, year int) ([]*domain.Pointer, error) {
	return b.app.Store.ListPointers(ctx, &store.FindPointer{Year: &year})
}

func (b *appBackend) Documents(ctx context.Context, pointerID string) ([]*domain.SupportingDocument, error) {
	return b.app.Store.ListDocuments(ctx, pointerID)
}

func (b *appBackend) SavePointer(ctx context.Context, draft *pointer.Draft, uploads []pointer.Upload) (*domain.Pointer, error) {
	return b.app.Pointers.Save(ctx, draft, uploads)
}

func (b *appBackend) DeletePointer(ctx context.Context, id string) error {
	return b.app.Pointers.Delete(ctx, id)
}

func (b *appBackend) DeleteDocument(ctx context.Context, id string) error {
	_, err := b.app.Store.DeleteDocument(ctx, id)
	return err
}

func (b *appBackend) Check(ctx context.Context, pointerID string) (*compliance.Report, error) {
	checker, err := b.app.Checker()
	if err != nil {
		return nil, err
	}
	return checker.Check(ctx, pointerID)
}

func (b *appBackend) IndexKeys() ([]domain.IndexKey, error) {
	catalog, err := b.app.Indexes()
	if err != nil {
		return nil, err
	}
	return catalog.Keys()
}

func (b *appBackend) Search(ctx context.Context, key domain.IndexKey, query string) ([]domain.SearchResult, error) {
	catalog, err := b.app.Indexes()
	if err != nil {
		return nil, err
	}
	idx, err := catalog.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.app.Retriever.Retrieve(ctx, idx, query)
}
