package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/palettehq/palette/docstore"
	"github.com/palettehq/palette/internal/ident"
	"github.com/palettehq/palette/relstore"
)

// RelationInput is one requested relation: the counterpart entity's
// username and the relation type token.
type RelationInput struct {
	Identifier string
	Type       string
}

// CreateRequest carries the create payload. Attributes is the document
// body minus the relations list; the allocated id is merged into it before
// the document write.
type CreateRequest struct {
	Username   string
	Attributes map[string]any
	Relations  []RelationInput
}

// CreateResult reports the server-assigned id and the username.
type CreateResult struct {
	ID       int64
	Username string
}

// createStep is one ordered step of the create flow. Steps run strictly in
// sequence; the first failure stops the flow with no compensation.
type createStep struct {
	name string
	run  func(ctx context.Context) error
}

// Create runs the create flow for one entity.
//
// Steps 1-3 (validate, verify related, reserve) fail cleanly: no state has
// been written, or in the reservation's case the failed insert wrote
// nothing. From allocation onward a failure leaves partial state behind -
// an orphaned reservation, a leaked id, a document without its relation
// rows. The failing step is logged by name so an offline job can reconcile;
// nothing is rolled back here.
func (c *Coordinator) Create(ctx context.Context, kindName string, req CreateRequest) (CreateResult, error) {
	kind, ok := c.kinds.Lookup(kindName)
	if !ok {
		return CreateResult{}, ErrUnknownKind
	}

	if verr := validateCreate(kind, req); verr != nil {
		return CreateResult{}, verr
	}

	// Existence precondition: every related entity must exist before any
	// write. Absent identifiers abort with no writes at all.
	usernames := make([]string, 0, len(req.Relations))
	for _, rel := range req.Relations {
		usernames = append(usernames, rel.Identifier)
	}
	resolutions, err := c.resolveAll(ctx, kind.Counterpart, usernames)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create %s %q: verify related: %w", kind.Name, req.Username, err)
	}

	resolved := make(map[string]int64, len(resolutions))
	var missing []string
	for _, res := range resolutions {
		if !res.Found {
			missing = append(missing, res.Username)
			continue
		}
		resolved[res.Username] = res.ID
	}
	if len(missing) > 0 {
		return CreateResult{}, &RelatedNotFoundError{Missing: missing}
	}

	var (
		id  int64
		doc docstore.Document
	)

	steps := []createStep{
		{"reserve-username", func(ctx context.Context) error {
			return c.rel.Reserve(ctx, req.Username)
		}},
		{"allocate-id", func(ctx context.Context) error {
			var err error
			id, err = c.rel.Allocate(ctx, kind.Name)
			return err
		}},
		{"put-document", func(ctx context.Context) error {
			doc = make(docstore.Document, len(req.Attributes)+2)
			for k, v := range req.Attributes {
				doc[k] = v
			}
			doc["id"] = id
			doc["username"] = req.Username
			return c.docs.Put(ctx, kind.Name, doc)
		}},
		{"tag-related", func(ctx context.Context) error {
			// Each object's tag must land before its relation row exists,
			// so all tags go in before the bulk row insert.
			for _, rel := range req.Relations {
				if err := c.docs.AppendType(ctx, kind.Counterpart, resolved[rel.Identifier], rel.Type); err != nil {
					return err
				}
			}
			return nil
		}},
		{"link-relations", func(ctx context.Context) error {
			rows := make([]relstore.Relation, 0, len(req.Relations))
			for _, rel := range req.Relations {
				rows = append(rows, relstore.Relation{
					SubjectID: id,
					ObjectID:  resolved[rel.Identifier],
					Type:      rel.Type,
				})
			}
			return c.rel.InsertRelations(ctx, rows)
		}},
	}

	for i, step := range steps {
		if err := step.run(ctx); err != nil {
			if errors.Is(err, relstore.ErrUsernameTaken) {
				return CreateResult{}, ErrUsernameExists
			}
			c.logger.Errorw("create aborted",
				"kind", kind.Name,
				"username", req.Username,
				"step", step.name,
				"completed", i,
				"error", err,
			)
			return CreateResult{}, fmt.Errorf("create %s %q: %s: %w", kind.Name, req.Username, step.name, err)
		}
	}

	// Mirror indexing rides behind the authoritative writes and never fails
	// the create.
	if err := c.search.Index(ctx, kind.Name, id, displayFields(kind, doc)); err != nil {
		c.logger.Warnw("search index skipped",
			"kind", kind.Name,
			"id", id,
			"error", err,
		)
	}

	c.logger.Infow("created entity",
		"kind", kind.Name,
		"id", id,
		"username", req.Username,
		"relations", len(req.Relations),
	)

	return CreateResult{ID: id, Username: req.Username}, nil
}

// validateCreate collects every violated field instead of stopping at the
// first, so one response lists everything the client must fix.
func validateCreate(kind Kind, req CreateRequest) *ValidationError {
	var fields []string

	if !ident.ValidUsername(req.Username) {
		fields = append(fields, "username")
	}
	if _, ok := req.Attributes["id"]; ok {
		// Ids are server-assigned only.
		fields = append(fields, "id")
	}
	if bodyUsername, ok := req.Attributes["username"].(string); ok && bodyUsername != req.Username {
		fields = append(fields, "username")
	}

	text, _ := req.Attributes[kind.TextField].(map[string]any)
	def, _ := text["default"].(string)
	if def == "" {
		fields = append(fields, kind.TextField+".default")
	}

	if kind.RequiresRelations && len(req.Relations) == 0 {
		fields = append(fields, "relations")
	}
	for i, rel := range req.Relations {
		if !ident.ValidUsername(rel.Identifier) {
			fields = append(fields, fmt.Sprintf("relations[%d].%s", i, kind.Counterpart))
		}
		if !ident.ValidRelationType(rel.Type) {
			fields = append(fields, fmt.Sprintf("relations[%d].type", i))
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// displayFields flattens the document's display attributes for the mirror:
// id, username, and every locale of the kind's text field.
func displayFields(kind Kind, doc docstore.Document) map[string]string {
	fields := map[string]string{
		"id": ident.FormatID(doc.ID()),
	}
	if username := doc.Username(); username != "" {
		fields["username"] = username
	}
	for locale, value := range doc.Text(kind.TextField) {
		fields[kind.TextField+"."+locale] = value
	}
	return fields
}
