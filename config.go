package jsonadm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Storage engines a ResourceConfig can select.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds the settings of the admin adapter and its server.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Query    QueryConfig    `json:"query" mapstructure:"query"`
	Resource ResourceConfig `json:"resource" mapstructure:"resource"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port            int           `json:"port" mapstructure:"port" validate:"gt=0,lt=65536"`
	BasePath        string        `json:"basePath" mapstructure:"base_path" validate:"required,startswith=/"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port" validate:"gte=0,lt=65536"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"sslMode" mapstructure:"ssl_mode"`
	MaxConnections  int           `json:"maxConnections" mapstructure:"max_connections" validate:"gt=0"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" mapstructure:"conn_max_idle_time"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	// UseIAM replaces the password with an Aurora DSQL auth token.
	UseIAM     bool       `json:"useIAM" mapstructure:"use_iam"`
	Region     string     `json:"region" mapstructure:"region"`
	TableNames TableNames `json:"tableNames" mapstructure:"table_names"`
}

// TableNames holds the names of the generic storage tables.
type TableNames struct {
	Entity string `json:"entity" mapstructure:"entity" validate:"required"`
	List   string `json:"list" mapstructure:"list" validate:"required"`
	Type   string `json:"type" mapstructure:"type" validate:"required"`
}

// QueryConfig contains search settings
type QueryConfig struct {
	DefaultTimeout  time.Duration `json:"defaultTimeout" mapstructure:"default_timeout"`
	DefaultPageSize int           `json:"defaultPageSize" mapstructure:"default_page_size" validate:"gt=0"`
	MaxPageSize     int           `json:"maxPageSize" mapstructure:"max_page_size" validate:"gt=0"`
}

// ResourceConfig selects the storage engine and declares the resource types it serves.
type ResourceConfig struct {
	Store       string               `json:"store" mapstructure:"store" validate:"oneof=memory postgres"`
	Domains     []string             `json:"domains" mapstructure:"domains"`
	Definitions []ResourceDefinition `json:"definitions" mapstructure:"definitions" validate:"dive"`
}

// ResourceDefinition declares one resource type.
type ResourceDefinition struct {
	Name       string                `json:"name" mapstructure:"name" validate:"required"`
	Attributes []AttributeDescriptor `json:"attributes" mapstructure:"attributes" validate:"dive"`
	// Lists enables the "<name>/lists" relationship records.
	Lists bool `json:"lists" mapstructure:"lists"`
	// Types enables "<name>/type" code lookups.
	Types []TypeDefinition `json:"types" mapstructure:"types" validate:"dive"`
	// Tree exposes children linked through "<prefix>.parentid".
	Tree bool `json:"tree" mapstructure:"tree"`
	// BaseFilter is a JSON filter every search of this resource is restricted to.
	BaseFilter string `json:"baseFilter" mapstructure:"base_filter"`
}

// TypeDefinition seeds a type code of a resource or list domain.
type TypeDefinition struct {
	Code   string `json:"code" mapstructure:"code" validate:"required"`
	Domain string `json:"domain" mapstructure:"domain" validate:"required"`
	Label  string `json:"label" mapstructure:"label"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" mapstructure:"format" validate:"oneof=json console"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			BasePath:        "/jsonadm",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			Region:          "us-east-1",
			TableNames: TableNames{
				Entity: "jsonadm_entity",
				List:   "jsonadm_list",
				Type:   "jsonadm_type",
			},
		},
		Query: QueryConfig{
			DefaultTimeout:  30 * time.Second,
			DefaultPageSize: 25,
			MaxPageSize:     100,
		},
		Resource: ResourceConfig{
			Store: StoreMemory,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ConfigError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: fmt.Sprintf("failed on '%s' rule", fe.Tag()),
			}
		}
		return &ConfigError{Field: "config", Message: err.Error()}
	}

	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return &ConfigError{Field: "query.maxPageSize", Message: "must be greater than or equal to defaultPageSize"}
	}

	if c.Resource.Store == StorePostgres && c.Database.Database == "" {
		return &ConfigError{Field: "database.database", Message: "required when resource.store is postgres"}
	}

	if c.Database.UseIAM && c.Database.Region == "" {
		return &ConfigError{Field: "database.region", Message: "required when database.useIAM is set"}
	}

	seen := make(map[string]struct{}, len(c.Resource.Definitions))
	for _, def := range c.Resource.Definitions {
		if _, dup := seen[def.Name]; dup {
			return &ConfigError{Field: "resource.definitions", Message: fmt.Sprintf("resource '%s' declared twice", def.Name)}
		}
		seen[def.Name] = struct{}{}
		if def.BaseFilter != "" {
			if _, err := UnmarshalCondition([]byte(def.BaseFilter)); err != nil {
				return &ConfigError{Field: "resource.definitions." + def.Name + ".baseFilter", Message: err.Error()}
			}
		}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// LoadConfig reads the configuration from defaults, the optional file at path and
// JSONADM_ prefixed environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("JSONADM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.username", d.Database.Username)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.use_iam", d.Database.UseIAM)
	v.SetDefault("database.region", d.Database.Region)
	v.SetDefault("database.table_names.entity", d.Database.TableNames.Entity)
	v.SetDefault("database.table_names.list", d.Database.TableNames.List)
	v.SetDefault("database.table_names.type", d.Database.TableNames.Type)

	v.SetDefault("query.default_timeout", d.Query.DefaultTimeout)
	v.SetDefault("query.default_page_size", d.Query.DefaultPageSize)
	v.SetDefault("query.max_page_size", d.Query.MaxPageSize)

	v.SetDefault("resource.store", d.Resource.Store)
	v.SetDefault("resource.domains", d.Resource.Domains)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Definition returns the declaration of the named resource type.
func (r ResourceConfig) Definition(name string) (ResourceDefinition, bool) {
	for _, def := range r.Definitions {
		if def.Name == name {
			return def, true
		}
	}
	return ResourceDefinition{}, false
}
