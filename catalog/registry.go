package catalog

import "strings"

// Kind describes one entity kind and how it relates to its counterpart.
type Kind struct {
	// Name is the kind name used in paths and table names (e.g. "art").
	Name string

	// Counterpart is the kind on the other end of this kind's relations.
	Counterpart string

	// TextField is the localized text attribute that must be present on
	// create ("title" for art, "name" for artizen).
	TextField string

	// Display lists the attributes projected when this kind appears as the
	// object of a joined read.
	Display []string

	// RequiresRelations requires at least one relation on create. Art
	// cannot exist without at least one artizen; an artizen can stand
	// alone.
	RequiresRelations bool
}

// NotFoundCode is the machine-readable code for an absent entity of this
// kind (e.g. "ART_NOT_FOUND").
func (k Kind) NotFoundCode() string {
	return strings.ToUpper(k.Name) + "_NOT_FOUND"
}

// RelatedNotFoundCode is the code for absent related entities on create
// (e.g. "RELATED_ARTIZEN_NOT_FOUND").
func (k Kind) RelatedNotFoundCode() string {
	return "RELATED_" + strings.ToUpper(k.Counterpart) + "_NOT_FOUND"
}

// Registry holds all known entity kinds.
type Registry struct {
	kinds map[string]Kind
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Register adds a kind to the registry.
func (r *Registry) Register(k Kind) {
	r.kinds[k.Name] = k
}

// Lookup returns the kind by name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Names returns the registered kind names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry returns the art/artizen pairing.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Kind{
		Name:              "art",
		Counterpart:       "artizen",
		TextField:         "title",
		Display:           []string{"id", "title", "image"},
		RequiresRelations: true,
	})
	r.Register(Kind{
		Name:        "artizen",
		Counterpart: "art",
		TextField:   "name",
		Display:     []string{"id", "name", "avatar"},
	})
	return r
}
