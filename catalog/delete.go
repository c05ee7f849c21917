package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/palettehq/palette/docstore"
)

// Delete removes an entity: relation rows where it is the subject, then the
// document, then the username reservation, then the mirror entry.
//
// Deleting an absent entity succeeds - the desired end state already holds.
// Relation rows where the entity is the *object* are left dangling; joined
// reads skip them. Failures surface the underlying store error and earlier
// steps stay committed.
func (c *Coordinator) Delete(ctx context.Context, kindName, idOrUsername string) error {
	kind, ok := c.kinds.Lookup(kindName)
	if !ok {
		return ErrUnknownKind
	}

	doc, err := c.docs.Get(ctx, kind.Name, idOrUsername)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s %q: %w", kind.Name, idOrUsername, err)
	}

	id := doc.ID()
	username := doc.Username()

	if err := c.rel.DeleteBySubject(ctx, id); err != nil {
		return fmt.Errorf("delete %s %d: relations: %w", kind.Name, id, err)
	}
	if err := c.docs.Delete(ctx, kind.Name, id); err != nil {
		return fmt.Errorf("delete %s %d: document: %w", kind.Name, id, err)
	}
	if username != "" {
		if err := c.rel.Release(ctx, username); err != nil {
			return fmt.Errorf("delete %s %d: release username: %w", kind.Name, id, err)
		}
	}

	if err := c.search.Remove(ctx, kind.Name, id); err != nil {
		c.logger.Warnw("search unindex skipped",
			"kind", kind.Name,
			"id", id,
			"error", err,
		)
	}

	c.logger.Infow("deleted entity",
		"kind", kind.Name,
		"id", id,
		"username", username,
	)

	return nil
}
