package docstore

import "errors"

var (
	// ErrNotFound is returned when no document exists for the given key.
	ErrNotFound = errors.New("docstore: entity not found")

	// ErrMissingID is returned by Put when the document has no numeric id.
	ErrMissingID = errors.New("docstore: document has no id")
)
