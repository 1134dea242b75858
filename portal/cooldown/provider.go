package cooldown

// Provider persists cooldowns across restarts. Load is called once when an engine is created and Save
// once when it is shut down.
type Provider interface {
	// Load returns the cooldowns that were saved previously. Expired entries may be returned and are
	// ignored by the caller.
	Load() ([]Entry, error)
	// Save replaces the saved cooldowns with the entries passed.
	Save(entries []Entry) error
	// Close releases the resources of the Provider.
	Close() error
}

// NopProvider is a Provider that does not persist anything. It is used when no Provider is configured.
type NopProvider struct{}

// Compile time check to make sure NopProvider implements Provider.
var _ Provider = NopProvider{}

// Load ...
func (NopProvider) Load() ([]Entry, error) { return nil, nil }

// Save ...
func (NopProvider) Save([]Entry) error { return nil }

// Close ...
func (NopProvider) Close() error { return nil }
