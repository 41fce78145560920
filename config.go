package modloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to the env tag of Config fields when reading
// environment overrides, e.g. MODLOADER_LOAD_TIMEOUT.
const EnvPrefix = "MODLOADER"

const (
	tagDefault = "default"
	tagEnv     = "env"
)

// Config holds loader settings and per-module overrides.
//
// Example YAML:
//
//	loadTimeout: 10s
//	modules:
//	  analytics:
//	    enabled: false
//	  cache:
//	    lazy: true
//	    options:
//	      size: 128
//
// Durations are Go duration strings such as "10s" in every format. JSON files
// may also give them as integer nanoseconds.
type Config struct {
	LoadTimeout          time.Duration           `yaml:"loadTimeout" toml:"loadTimeout" json:"loadTimeout" env:"LOAD_TIMEOUT" default:"30s" validate:"gt=0"`
	ShutdownTimeout      time.Duration           `yaml:"shutdownTimeout" toml:"shutdownTimeout" json:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
	HealthReportSchedule string                  `yaml:"healthReportSchedule" toml:"healthReportSchedule" json:"healthReportSchedule" env:"HEALTH_REPORT_SCHEDULE" default:"@every 1m" validate:"required"`
	Modules              map[string]ModuleConfig `yaml:"modules" toml:"modules" json:"modules" validate:"omitempty,dive"`
}

// ModuleConfig overrides descriptor fields of one module. Unset fields keep
// the registered value; Options are merged key by key.
type ModuleConfig struct {
	Enabled  *bool          `yaml:"enabled" toml:"enabled" json:"enabled,omitempty"`
	Lazy     *bool          `yaml:"lazy" toml:"lazy" json:"lazy,omitempty"`
	Priority *int           `yaml:"priority" toml:"priority" json:"priority,omitempty"`
	Timeout  time.Duration  `yaml:"timeout" toml:"timeout" json:"timeout,omitempty" validate:"gte=0"`
	Options  map[string]any `yaml:"options" toml:"options" json:"options,omitempty"`
}

// UnmarshalJSON accepts timeout as a duration string such as "5s" or as
// integer nanoseconds.
func (mc *ModuleConfig) UnmarshalJSON(data []byte) error {
	type plain ModuleConfig
	aux := struct {
		plain
		Timeout *jsonDuration `json:"timeout"`
	}{plain: plain(*mc)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*mc = ModuleConfig(aux.plain)
	if aux.Timeout != nil {
		mc.Timeout = time.Duration(*aux.Timeout)
	}
	return nil
}

// Apply returns desc with the overrides applied.
func (mc ModuleConfig) Apply(desc ModuleDescriptor) ModuleDescriptor {
	desc = desc.clone()
	if mc.Enabled != nil {
		desc.Enabled = *mc.Enabled
	}
	if mc.Lazy != nil {
		desc.Lazy = *mc.Lazy
	}
	if mc.Priority != nil {
		desc.Priority = *mc.Priority
	}
	if mc.Timeout > 0 {
		desc.Timeout = mc.Timeout
	}
	if len(mc.Options) > 0 {
		if desc.Options == nil {
			desc.Options = make(map[string]any, len(mc.Options))
		}
		for k, v := range mc.Options {
			desc.Options[k] = v
		}
	}
	return desc
}

// UnmarshalJSON accepts the timeouts as duration strings such as "5s" or as
// integer nanoseconds, matching what the YAML and TOML decoders accept.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		plain
		LoadTimeout     *jsonDuration `json:"loadTimeout"`
		ShutdownTimeout *jsonDuration `json:"shutdownTimeout"`
	}{plain: plain(*c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Config(aux.plain)
	if aux.LoadTimeout != nil {
		c.LoadTimeout = time.Duration(*aux.LoadTimeout)
	}
	if aux.ShutdownTimeout != nil {
		c.ShutdownTimeout = time.Duration(*aux.ShutdownTimeout)
	}
	return nil
}

// jsonDuration decodes a JSON string with time.ParseDuration or a JSON number
// as nanoseconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		*d = jsonDuration(parsed)
	case float64:
		*d = jsonDuration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration value %s", data)
	}
	return nil
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = ProcessConfigDefaults(cfg)
	return cfg
}

// LoadConfigFile reads a YAML, TOML or JSON file, applies environment
// overrides and defaults, and validates the result.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := ApplyEnvOverrides(cfg, EnvPrefix); err != nil {
		return nil, err
	}
	if err := ProcessConfigDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config against its validate tags.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
	}
	return nil
}

// ProcessConfigDefaults fills zero-valued fields of the struct pointed to by
// cfg from their `default` tags.
func ProcessConfigDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		def, ok := t.Field(i).Tag.Lookup(tagDefault)
		if !ok || !field.CanSet() || !field.IsZero() {
			continue
		}
		if err := setFieldValue(field, def); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", t.Field(i).Name, err)
		}
	}
	return nil
}

// ApplyEnvOverrides sets fields carrying an `env` tag from PREFIX_TAG
// environment variables when those are set.
func ApplyEnvOverrides(cfg any, prefix string) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag, ok := t.Field(i).Tag.Lookup(tagEnv)
		if !ok || !field.CanSet() {
			continue
		}
		name := strings.ToUpper(tag)
		if prefix != "" {
			name = prefix + "_" + name
		}
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
	}
	return nil
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("config must be a non-nil pointer to a struct, got %T", cfg)
	}
	return v.Elem(), nil
}

// setFieldValue converts raw to the field type and assigns it.
func setFieldValue(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}
	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}

// ApplyConfig updates the load timeout and rebuilds every module descriptor
// from the descriptor passed to Register with the overrides of cfg applied.
// Modules without an override in cfg get their registered descriptor back,
// so removing an override from a watched file undoes it. Already loaded
// instances are not affected. Overrides for unknown modules are skipped with
// a warning.
func (l *Loader) ApplyConfig(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}
	l.SetLoadTimeout(cfg.LoadTimeout)

	l.baseMu.Lock()
	defer l.baseMu.Unlock()

	for name := range cfg.Modules {
		if _, ok := l.base[name]; !ok {
			l.logger.Warn("Config references unregistered module, skipping", "module", name)
		}
	}

	names := make([]string, 0, len(l.base))
	for name := range l.base {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	applied := 0
	for _, name := range names {
		desc := l.base[name].clone()
		if mc, ok := cfg.Modules[name]; ok {
			desc = mc.Apply(desc)
			applied++
		}
		if err := l.registry.Register(desc); err != nil {
			l.logger.Error("Module override rejected", "module", name, "error", err)
			errs = append(errs, err)
		}
	}

	l.logger.Info("Config applied", "loadTimeout", l.LoadTimeout(), "modules", applied)
	l.emit(context.Background(), EventTypeConfigApplied, map[string]any{"modules": applied})
	return errors.Join(errs...)
}
