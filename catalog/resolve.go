package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/palettehq/palette/docstore"
)

// Resolution is the outcome of resolving one related identifier. Found
// false means the entity does not exist - a valid result, not an error.
type Resolution struct {
	Username string
	ID       int64
	Found    bool
}

// resolveAll resolves every username to a numeric id concurrently. All
// lookups are issued at once and joined on a single barrier, so latency is
// bounded by the slowest lookup rather than the sum. A store error from any
// lookup fails the whole resolve: the caller needs an all-or-nothing
// existence precondition before it commits to id allocation, and "the store
// is down" must never masquerade as "does not exist".
func (c *Coordinator) resolveAll(ctx context.Context, kind string, usernames []string) ([]Resolution, error) {
	results := make([]Resolution, len(usernames))
	errs := make(chan error, len(usernames))
	var wg sync.WaitGroup

	for i, username := range usernames {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()

			doc, err := c.docs.GetByUsername(ctx, kind, username)
			if errors.Is(err, docstore.ErrNotFound) {
				results[i] = Resolution{Username: username}
				return
			}
			if err != nil {
				errs <- err
				return
			}
			results[i] = Resolution{Username: username, ID: doc.ID(), Found: true}
		}(i, username)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
