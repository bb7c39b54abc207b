package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"consensus-engine/control"
	"consensus-engine/logging"
)

const (
	DefaultUDPPort = 44333
	envPrefix      = "CONSENSUS_"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes one experiment run.
type Config struct {
	Controller ControllerConfig `json:"controller" yaml:"controller"`
	Fleet      FleetConfig      `json:"fleet" yaml:"fleet"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

type ControllerConfig struct {
	Law         string         `json:"law" yaml:"law" validate:"required"`
	Params      control.Params `json:"params" yaml:"params"`
	Parallelism int            `json:"parallelism" yaml:"parallelism" validate:"gte=1"`
}

type FleetConfig struct {
	// Size is the expected number of vehicles; 0 leaves it open.
	Size int `json:"size" yaml:"size" validate:"gte=0"`
	// TickDuration is the simulator step in seconds. Snapshots carry their
	// own; the bridge reports snapshots that disagree with this value.
	TickDuration float64 `json:"tick_duration" yaml:"tick_duration" validate:"gt=0"`
}

type ServerConfig struct {
	UDPPort  int    `json:"udp_port" yaml:"udp_port" validate:"gte=0,lte=65535"`
	HTTPPort int    `json:"http_port" yaml:"http_port" validate:"gte=0,lte=65535"`
	Record   string `json:"record" yaml:"record"`
	// BroadcastHz caps websocket tick summaries per second.
	BroadcastHz float64 `json:"broadcast_hz" yaml:"broadcast_hz" validate:"gte=0"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Dev   bool   `json:"dev" yaml:"dev"`
}

// Default runs IDM with no noise, no failsafe and an open fleet.
func Default() Config {
	return Config{
		Controller: ControllerConfig{
			Law:         control.LawIDM,
			Params:      control.DefaultParams(),
			Parallelism: 1,
		},
		Fleet: FleetConfig{TickDuration: control.DefaultTickDuration},
		Server: ServerConfig{
			UDPPort:     DefaultUDPPort,
			BroadcastHz: 10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file at path over the defaults, then applies CONSENSUS_*
// environment overrides, then validates. An empty path skips the file.
func Load(path string) (Config, error) {
	return LoadFrom(Default(), path)
}

// LoadFrom is Load starting from base instead of the defaults.
func LoadFrom(base Config, path string) (Config, error) {
	cfg := base
	cfg.Controller.Params.Failsafes = append([]control.FailsafeMode(nil), base.Controller.Params.Failsafes...)
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// loadEnv applies overrides. Unlike the file, a malformed value is an error.
func loadEnv(cfg *Config) error {
	p := &cfg.Controller.Params
	if v, ok := lookup("LAW"); ok {
		cfg.Controller.Law = v
	}
	floats := map[string]*float64{
		"V0":             &p.V0,
		"A":              &p.A,
		"B":              &p.B,
		"T":              &p.T,
		"S0":             &p.S0,
		"C_HEADWAY":      &p.CHeadway,
		"C_VELOCITY":     &p.CVelocity,
		"C_ACCELERATION": &p.CAcceleration,
		"NOISE":          &p.Noise,
		"MAX_ACCEL":      &p.MaxAccel,
		"MAX_DECEL":      &p.MaxDecel,
		"TICK_DURATION":  &cfg.Fleet.TickDuration,
		"BROADCAST_HZ":   &cfg.Server.BroadcastHz,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = f
		}
	}
	ints := map[string]*int{
		"NEIGHBOR_COUNT":  &p.NeighborCount,
		"RESYNC_INTERVAL": &p.ResyncInterval,
		"DELAY_TICKS":     &p.DelayTicks,
		"FLEET_SIZE":      &cfg.Fleet.Size,
		"PARALLELISM":     &cfg.Controller.Parallelism,
		"UDP_PORT":        &cfg.Server.UDPPort,
		"HTTP_PORT":       &cfg.Server.HTTPPort,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = i
		}
	}
	if v, ok := lookup("SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sSEED: %w", envPrefix, err)
		}
		p.Seed = seed
	}
	if v, ok := lookup("FAILSAFE"); ok {
		p.Failsafes = nil
		for _, mode := range strings.Split(v, ",") {
			if mode = strings.TrimSpace(mode); mode != "" {
				p.Failsafes = append(p.Failsafes, control.FailsafeMode(mode))
			}
		}
	}
	if v, ok := lookup("RECORD"); ok {
		cfg.Server.Record = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_DEV"); ok {
		cfg.Log.Dev = v == "true" || v == "1"
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	return v, ok && v != ""
}

// Validate checks field ranges, the log level and the controller parameters
// for the configured law.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !slices.Contains(control.Laws(), c.Controller.Law) {
		return fmt.Errorf("%w %q (known: %v)", control.ErrUnknownLaw, c.Controller.Law, control.Laws())
	}
	return c.ControllerParams().Validate(c.Controller.Law)
}

// ControllerParams returns the law parameters with the fleet size filled in.
func (c Config) ControllerParams() control.Params {
	p := c.Controller.Params
	p.FleetSize = c.Fleet.Size
	return p
}

// LogLevel returns the parsed verbosity; Validate has already checked it.
func (c Config) LogLevel() int {
	lvl, _ := logging.ParseLevel(c.Log.Level)
	return lvl
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
