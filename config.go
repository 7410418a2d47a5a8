package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Name modes.
const (
	NameModeRandom = "random"
	NameModeFake   = "fake"
	NameModeFile   = "file"
	NameModeFixed  = "fixed"
)

// Config represents the application configuration
type Config struct {
	// Target settings
	Host      string `yaml:"host" json:"host" toml:"host"`
	Port      string `yaml:"port" json:"port" toml:"port"`
	Interface string `yaml:"interface" json:"interface" toml:"interface"`

	// Load settings
	Count        uint64        `yaml:"count" json:"count" toml:"count"`
	PPS          uint64        `yaml:"pps" json:"pps" toml:"pps"`
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout" toml:"drain_timeout"`
	Seed         int64         `yaml:"seed" json:"seed" toml:"seed"`

	// Query settings
	NameMode     string         `yaml:"name_mode" json:"name_mode" toml:"name_mode"`
	Name         string         `yaml:"name" json:"name" toml:"name"`
	NamesFile    string         `yaml:"names_file" json:"names_file" toml:"names_file"`
	NameSuffix   string         `yaml:"name_suffix" json:"name_suffix" toml:"name_suffix"`
	RepeatChance float64        `yaml:"repeat_chance" json:"repeat_chance" toml:"repeat_chance"`
	Types        []WeightedType `yaml:"types" json:"types" toml:"types"`
	TypeScale    uint64         `yaml:"type_scale" json:"type_scale" toml:"type_scale"` // zero means the sum of the weights

	// Fuzz settings
	Fuzz         bool    `yaml:"fuzz" json:"fuzz" toml:"fuzz"`
	RefuzzChance float64 `yaml:"refuzz_chance" json:"refuzz_chance" toml:"refuzz_chance"`

	// Performance settings
	SocketBuffer int `yaml:"socket_buffer" json:"socket_buffer" toml:"socket_buffer"`
	BufferSize   int `yaml:"buffer_size" json:"buffer_size" toml:"buffer_size"`

	// Display settings
	LogLevel      string        `yaml:"log_level" json:"log_level" toml:"log_level"`
	Verbose       bool          `yaml:"verbose" json:"verbose" toml:"verbose"`
	Quiet         bool          `yaml:"quiet" json:"quiet" toml:"quiet"`
	TUI           bool          `yaml:"tui" json:"tui" toml:"tui"`
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval" toml:"stats_interval"`

	// Metrics settings
	StatsdAddr  string `yaml:"statsd" json:"statsd" toml:"statsd"`
	MetricsAddr string `yaml:"metrics_listen" json:"metrics_listen" toml:"metrics_listen"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Port:          "domain",
		Seed:          0,
		NameMode:      NameModeRandom,
		NameSuffix:    "com",
		RepeatChance:  defaultRepeatChance,
		Types:         append([]WeightedType(nil), DefaultTypeWeights...),
		RefuzzChance:  defaultRefuzzChance,
		SocketBuffer:  defaultSocketBufferLen,
		BufferSize:    maxUDPPayload,
		StatsInterval: defaultReportInterval,
	}
}

// LoadConfigFile loads configuration from a YAML, JSON or TOML file on top
// of the defaults.
func LoadConfigFile(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = json.Unmarshal(data, config)
	case ".toml":
		err = toml.Unmarshal(data, config)
	default:
		// Try YAML first, then JSON
		err = yaml.Unmarshal(data, config)
		if err != nil {
			err = json.Unmarshal(data, config)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// SaveConfigFile saves the current configuration to a file
func (c *Config) SaveConfigFile(filename string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".toml":
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	default:
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(filename, data, 0644)
}

// ApplyArgs consumes the positional command line:
//
//	[fuzz] <host> [<count>] [<pps>] [<port>]
//
// A count or pps of zero means unlimited.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) > 0 && strings.EqualFold(args[0], "fuzz") {
		c.Fuzz = true
		args = args[1:]
	}
	if len(args) == 0 {
		if c.Host == "" {
			return fmt.Errorf("missing target host")
		}
		return nil
	}
	if len(args) > 4 {
		return fmt.Errorf("too many arguments: %q", args[4:])
	}

	c.Host = args[0]
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", args[1], err)
		}
		c.Count = n
	}
	if len(args) > 2 {
		n, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid pps %q: %w", args[2], err)
		}
		c.PPS = n
	}
	if len(args) > 3 {
		c.Port = args[3]
	}
	return nil
}

// Validate checks if the configuration is valid and reports every problem
// it finds.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("target host cannot be empty"))
	}
	if c.Port == "" {
		errs = multierror.Append(errs, fmt.Errorf("port cannot be empty"))
	}
	if c.RepeatChance < 0 || c.RepeatChance >= 1 {
		errs = multierror.Append(errs, fmt.Errorf("repeat chance must be in [0, 1)"))
	}
	if c.RefuzzChance < 0 || c.RefuzzChance >= 1 {
		errs = multierror.Append(errs, fmt.Errorf("refuzz chance must be in [0, 1)"))
	}
	if c.BufferSize < headerLen+5 || c.BufferSize > maxUDPPayload {
		errs = multierror.Append(errs, fmt.Errorf("buffer size must be between %d and %d", headerLen+5, maxUDPPayload))
	}
	if c.SocketBuffer < 0 {
		errs = multierror.Append(errs, fmt.Errorf("socket buffer cannot be negative"))
	}
	if c.StatsInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("stats interval must be positive"))
	}
	if c.DrainTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("drain timeout cannot be negative"))
	}

	switch c.NameMode {
	case "", NameModeRandom, NameModeFake:
	case NameModeFile:
		if c.NamesFile == "" {
			errs = multierror.Append(errs, fmt.Errorf("name mode %q needs a names file", c.NameMode))
		}
	case NameModeFixed:
		if c.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("name mode %q needs a name", c.NameMode))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown name mode %q", c.NameMode))
	}

	if _, err := NewTypeSelector(c.Types, c.TypeScale, nil); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("invalid type table: %w", err))
	}

	return errs.ErrorOrNil()
}

// GenerateExampleConfig creates an example configuration file
func GenerateExampleConfig(filename string) error {
	example := DefaultConfig()
	example.Host = "127.0.0.1"
	example.Count = 100000
	example.PPS = 10000
	example.StatsdAddr = "127.0.0.1:8125"
	example.MetricsAddr = "127.0.0.1:9153"

	return example.SaveConfigFile(filename)
}
