package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/palettehq/palette/docstore"
)

// Group is one relation-type bucket of a joined read.
type Group struct {
	Type string              `json:"type"`
	Data []docstore.Document `json:"data"`
}

// Relations runs the joined read: the subject's relation rows merged with
// the related entities' display attributes, grouped by relation type.
//
// Rows arrive ordered by object id descending, so a single linear pass
// collapses adjacent duplicate ids into the batch fetch key list. The
// grouping itself walks every row: the same object can appear under several
// relation types and each row keeps its own joined copy. Rows whose object
// no longer exists (deleted independently; nothing cascades here) are
// dropped silently. Group order is the first-occurrence order of each type
// in the row stream.
func (c *Coordinator) Relations(ctx context.Context, kindName, idOrUsername, typeFilter string) ([]Group, error) {
	kind, ok := c.kinds.Lookup(kindName)
	if !ok {
		return nil, ErrUnknownKind
	}
	counterpart, ok := c.kinds.Lookup(kind.Counterpart)
	if !ok {
		return nil, ErrUnknownKind
	}

	subject, err := c.docs.Get(ctx, kind.Name, idOrUsername)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("relations of %s %q: %w", kind.Name, idOrUsername, err)
	}

	rows, err := c.rel.QueryBySubject(ctx, subject.ID(), typeFilter)
	if err != nil {
		return nil, fmt.Errorf("relations of %s %q: %w", kind.Name, idOrUsername, err)
	}
	if len(rows) == 0 {
		return []Group{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for i, row := range rows {
		if i == 0 || row.ObjectID != rows[i-1].ObjectID {
			ids = append(ids, row.ObjectID)
		}
	}

	objects, err := c.docs.BatchGet(ctx, counterpart.Name, ids, counterpart.Display...)
	if err != nil {
		return nil, fmt.Errorf("relations of %s %q: %w", kind.Name, idOrUsername, err)
	}

	byID := make(map[int64]docstore.Document, len(objects))
	for _, obj := range objects {
		byID[obj.ID()] = obj
	}

	groups := make([]Group, 0)
	index := make(map[string]int)
	for _, row := range rows {
		obj, found := byID[row.ObjectID]
		if !found {
			continue
		}
		at, seen := index[row.Type]
		if !seen {
			at = len(groups)
			index[row.Type] = at
			groups = append(groups, Group{Type: row.Type, Data: []docstore.Document{}})
		}
		groups[at].Data = append(groups[at].Data, obj)
	}

	return groups, nil
}
