package docstore

// Config holds configuration for the Store.
type Config struct {
	// TablePrefix is prepended to every entity kind to form the table name.
	// Default: "" (table name equals the kind, e.g. "art", "artizen")
	TablePrefix string

	// UsernameIndex is the name of the GSI keyed on the username attribute.
	// Default: "username-index"
	UsernameIndex string
}

// DefaultConfig returns the defaults used by the production tables.
func DefaultConfig() Config {
	return Config{
		UsernameIndex: "username-index",
	}
}

func (c *Config) validate() {
	if c.UsernameIndex == "" {
		c.UsernameIndex = "username-index"
	}
}
