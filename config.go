package docq

import (
	"encoding/json"

	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/util"
)

// Config configures schema parsing and compilation
type Config struct {
	// PKAlias is the root path segment that addresses the primary key (default: pk)
	PKAlias string `json:"pk_alias" validate:"required,excludes=."`
	// PKStorageName is the storage name of primary keys (default: _id)
	PKStorageName string `json:"pk_storage_name" validate:"required"`
	// Naming is the storage naming strategy for fields without an x-db-field (as-is, snake, camel)
	Naming Naming `json:"naming" validate:"required,oneof=as-is snake camel"`
	// LogLevel is the level of the compiler's logger (debug, info, warn, error)
	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		PKAlias:       DefaultPKAlias,
		PKStorageName: DefaultPKStorageName,
		Naming:        NamingAsIs,
		LogLevel:      "info",
	}
}

// LoadConfig loads a configuration from yaml or json content. Unset fields keep their defaults.
func LoadConfig(content []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(content) == 0 {
		return cfg, nil
	}
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.Validation, "failed to convert config to json")
	}
	values := map[string]any{}
	if err := json.Unmarshal(jsonContent, &values); err != nil {
		return Config{}, errors.Wrap(err, errors.Validation, "failed to decode config")
	}
	if err := util.Decode(values, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.Validation, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return errors.Wrap(err, errors.Validation, "invalid config")
	}
	return nil
}

// SchemaOptions returns the schema options derived from the configuration
func (c Config) SchemaOptions() []SchemaOption {
	return []SchemaOption{
		WithNaming(c.Naming),
		WithPKStorageName(c.PKStorageName),
	}
}
