package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/palettehq/palette/docstore"
	"github.com/palettehq/palette/relstore"
)

// DocumentStore is the document-side contract the Coordinator needs.
// *docstore.Store satisfies it.
type DocumentStore interface {
	Get(ctx context.Context, kind, idOrUsername string) (docstore.Document, error)
	GetByUsername(ctx context.Context, kind, username string) (docstore.Document, error)
	Put(ctx context.Context, kind string, doc docstore.Document) error
	AppendType(ctx context.Context, kind string, id int64, tag string) error
	Delete(ctx context.Context, kind string, id int64) error
	BatchGet(ctx context.Context, kind string, ids []int64, fields ...string) ([]docstore.Document, error)
}

// RelationStore is the relational-side contract. *relstore.Repository
// satisfies it.
type RelationStore interface {
	Reserve(ctx context.Context, username string) error
	Release(ctx context.Context, username string) error
	Allocate(ctx context.Context, kind string) (int64, error)
	InsertRelations(ctx context.Context, rows []relstore.Relation) error
	QueryBySubject(ctx context.Context, subjectID int64, typeFilter string) ([]relstore.Relation, error)
	DeleteBySubject(ctx context.Context, subjectID int64) error
}

// SearchIndex is the best-effort mirror contract. *searchmirror.Client
// satisfies it. Failures from these methods are logged, never propagated.
type SearchIndex interface {
	Index(ctx context.Context, kind string, id int64, fields map[string]string) error
	Remove(ctx context.Context, kind string, id int64) error
}

// Coordinator sequences the cross-store flows. It holds no locks and no
// cross-store transactions; see the package documentation for the
// consistency contract.
type Coordinator struct {
	docs   DocumentStore
	rel    RelationStore
	search SearchIndex
	kinds  *Registry
	logger *zap.SugaredLogger
}

// New creates a Coordinator over the three stores with the default
// art/artizen registry.
func New(docs DocumentStore, rel RelationStore, search SearchIndex, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		docs:   docs,
		rel:    rel,
		search: search,
		kinds:  DefaultRegistry(),
		logger: logger,
	}
}

// Kinds returns the entity kind registry.
func (c *Coordinator) Kinds() *Registry {
	return c.kinds
}

// Get fetches an entity document by numeric id or username. Returns
// docstore.ErrNotFound when absent.
func (c *Coordinator) Get(ctx context.Context, kindName, idOrUsername string) (docstore.Document, error) {
	kind, ok := c.kinds.Lookup(kindName)
	if !ok {
		return nil, ErrUnknownKind
	}
	return c.docs.Get(ctx, kind.Name, idOrUsername)
}
