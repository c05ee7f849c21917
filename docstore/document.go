package docstore

// Document is a schemaless entity document as stored in DynamoDB.
//
// Numeric attributes unmarshal as float64; the accessors below hide that
// from callers. An 8-digit id is far inside float64's exact integer range,
// so the round-trip is lossless.
type Document map[string]any

// ID returns the numeric entity id, or 0 if the document has none.
func (d Document) ID() int64 {
	switch v := d["id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Username returns the username slug, or "" if the document has none.
func (d Document) Username() string {
	s, _ := d["username"].(string)
	return s
}

// Types returns the denormalized relation-type tag list.
func (d Document) Types() []string {
	raw, ok := d["type"].([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// HasType reports whether tag is already in the type-tag list.
func (d Document) HasType(tag string) bool {
	for _, t := range d.Types() {
		if t == tag {
			return true
		}
	}
	return false
}

// Text returns a localized text field such as title or name as a
// locale -> string mapping.
func (d Document) Text(field string) map[string]string {
	raw, ok := d[field].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for locale, v := range raw {
		if s, ok := v.(string); ok {
			out[locale] = s
		}
	}
	return out
}
