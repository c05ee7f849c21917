package catalog

import (
	"fmt"
	"strings"
)

// Sentinel errors for the clean failure paths: all of these are detected
// before any mutating call, so the caller can rely on no partial state.
var (
	// ErrUnknownKind is returned for an entity kind outside the registry.
	ErrUnknownKind = fmt.Errorf("catalog: unknown entity kind")

	// ErrSubjectNotFound is returned when the subject of a read or joined
	// read does not exist.
	ErrSubjectNotFound = fmt.Errorf("catalog: subject not found")

	// ErrUsernameExists is returned when the username reservation reports a
	// duplicate. The reservation attempt itself wrote nothing.
	ErrUsernameExists = fmt.Errorf("catalog: username already exists")
)

// ValidationError reports every violated field of a create request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "catalog: invalid fields: " + strings.Join(e.Fields, ", ")
}

// RelatedNotFoundError names exactly the related identifiers that do not
// exist. Absence is a valid resolver outcome, distinct from a store error.
type RelatedNotFoundError struct {
	Missing []string
}

func (e *RelatedNotFoundError) Error() string {
	return "catalog: related entities not found: " + strings.Join(e.Missing, ", ")
}
