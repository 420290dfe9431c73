package schedbot

import (
	"schedbot/stores"
)

// Config holds configuration for the bot surfaces.
type Config struct {
	ModelName    string
	Provider     string // "rest" or "sdk"
	SystemPrompt string
	Store        stores.MessageStore
}

// NewConfig creates a configuration with default values. No store is opened
// here; the SQLite default materializes on the first ResolveStore call, so a
// caller that sets its own store never touches the default database file.
func NewConfig() *Config {
	return &Config{
		ModelName: "gemini-2.0-flash",
		Provider:  "rest",
	}
}

// ResolveStore returns the configured store, opening the default SQLite
// store when none was set.
func (c *Config) ResolveStore() (stores.MessageStore, error) {
	if c.Store == nil {
		store, err := stores.NewSQLiteStoreDefault()
		if err != nil {
			return nil, err
		}
		c.Store = store
	}
	return c.Store, nil
}

// WithModelName sets the model name for the configuration
func (c *Config) WithModelName(modelName string) *Config {
	c.ModelName = modelName
	return c
}

// WithProvider selects the Gemini provider implementation.
func (c *Config) WithProvider(provider string) *Config {
	c.Provider = provider
	return c
}

// WithSystemPrompt sets the system prompt sent with every model request.
func (c *Config) WithSystemPrompt(prompt string) *Config {
	c.SystemPrompt = prompt
	return c
}

// WithStore sets the message store for the configuration
func (c *Config) WithStore(store stores.MessageStore) *Config {
	c.Store = store
	return c
}

// WithSQLiteStore sets a SQLite store with the specified database path
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithPostgresStore sets a PostgreSQL store with the specified connection parameters
func (c *Config) WithPostgresStore(host, user, password, dbname string, port int) *Config {
	store, err := stores.NewPostgresStoreDefault(host, user, password, dbname, port)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Store = store
	return c
}
