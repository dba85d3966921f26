package config

import (
	"fmt"

	"github.com/kadirpekel/cerberus/pkg/observability"
)

// Config is the root configuration for the admission control engine.
//
// Every section is optional: an empty config (or one with only `store:`)
// loads, defaults itself, and runs with in-memory backends.
type Config struct {
	// Logging configures log level, format, and destination.
	Logging LoggerConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Observability configures tracing and metrics.
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`

	// Store configures the shared counter store backing all algorithms.
	Store *StoreConfig `yaml:"store,omitempty" json:"store,omitempty"`

	// Databases defines named SQL databases referenced by other sections.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty"`

	// Behavior configures reputation scoring and its profile store.
	Behavior *BehaviorConfig `yaml:"behavior,omitempty" json:"behavior,omitempty"`

	// Limits configures the default limit and per-endpoint overrides.
	Limits *LimitsConfig `yaml:"limits,omitempty" json:"limits,omitempty"`

	// Policy configures geographic, behavioral, and warmup adjustments.
	Policy *PolicyConfig `yaml:"policy,omitempty" json:"policy,omitempty"`

	// Breaker configures the store circuit breaker.
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`

	// Backoff configures the violation backoff hint.
	Backoff *BackoffConfig `yaml:"backoff,omitempty" json:"backoff,omitempty"`

	// Server configures the HTTP admission service.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`
}

// SetDefaults applies default values to all sections.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Observability.SetDefaults()

	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	c.Store.SetDefaults()

	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	for name := range c.Databases {
		if c.Databases[name] != nil {
			c.Databases[name].SetDefaults()
		}
	}

	if c.Behavior == nil {
		c.Behavior = &BehaviorConfig{}
	}
	c.Behavior.SetDefaults()

	if c.Limits == nil {
		c.Limits = &LimitsConfig{}
	}
	c.Limits.SetDefaults()

	if c.Policy == nil {
		c.Policy = &PolicyConfig{}
	}
	c.Policy.SetDefaults()

	if c.Breaker == nil {
		c.Breaker = &BreakerConfig{}
	}
	c.Breaker.SetDefaults()

	if c.Backoff == nil {
		c.Backoff = &BackoffConfig{}
	}
	c.Backoff.SetDefaults()

	c.Server.SetDefaults()
}

// Validate checks all sections and cross-section references.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	if c.Store != nil {
		if err := c.Store.Validate(); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	for name, db := range c.Databases {
		if db != nil {
			if err := db.Validate(); err != nil {
				return fmt.Errorf("databases.%s: %w", name, err)
			}
		}
	}

	if c.Behavior != nil {
		if err := c.Behavior.Validate(); err != nil {
			return fmt.Errorf("behavior: %w", err)
		}
	}

	if c.Limits != nil {
		if err := c.Limits.Validate(); err != nil {
			return fmt.Errorf("limits: %w", err)
		}
	}

	if c.Policy != nil {
		if err := c.Policy.Validate(); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}

	if c.Breaker != nil {
		if err := c.Breaker.Validate(); err != nil {
			return fmt.Errorf("breaker: %w", err)
		}
	}

	if c.Backoff != nil {
		if err := c.Backoff.Validate(); err != nil {
			return fmt.Errorf("backoff: %w", err)
		}
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.validateReferences(); err != nil {
		return fmt.Errorf("reference validation failed: %w", err)
	}

	return nil
}

// validateReferences checks that named database references resolve.
func (c *Config) validateReferences() error {
	if c.Behavior != nil && c.Behavior.Backend == StoreBackendSQL {
		name := c.Behavior.SQLDatabase
		if _, ok := c.Databases[name]; !ok {
			return fmt.Errorf("behavior: database '%s' not found (available: %v)",
				name, mapKeys(c.Databases))
		}
	}
	return nil
}

// GetDatabase returns the named database config.
func (c *Config) GetDatabase(name string) (*DatabaseConfig, bool) {
	db, ok := c.Databases[name]
	if !ok || db == nil {
		return nil, false
	}
	return db, true
}

// LimitFor returns the limit for an endpoint, falling back to the default.
func (c *Config) LimitFor(endpoint string) *LimitConfig {
	if c.Limits == nil {
		return nil
	}
	return c.Limits.For(endpoint)
}

func mapKeys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
