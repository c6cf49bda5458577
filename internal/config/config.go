package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/cellgraph/internal/errors"
	"github.com/vango-dev/cellgraph/pkg/reactive"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "cellgraph.json"

	// DefaultAddr is the default listen address of `cellgraph serve`.
	DefaultAddr = "localhost:8080"

	DefaultLivePath     = "/ws"
	DefaultMetricsPath  = "/metrics"
	DefaultNamespace    = "cellgraph"
	DefaultTracerName   = "cellgraph"
	DefaultWriteTimeout = "10s"
	DefaultTickInterval = "1s"
	DefaultItems        = 12
)

// Config represents the complete cellgraph.json configuration.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler"`
	Log       LogConfig       `json:"log"`
	Metrics   MetricsConfig   `json:"metrics"`
	Tracing   TracingConfig   `json:"tracing"`
	Live      LiveConfig      `json:"live"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// SchedulerConfig tunes the reactive scheduler.
type SchedulerConfig struct {
	// CycleLimit is the number of consecutive flush generations that may
	// leave work behind before the queue is dropped.
	CycleLimit int `json:"cycleLimit"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`

	// Format is "text" or "json".
	Format string `json:"format"`
}

// MetricsConfig controls the Prometheus instrument and endpoint.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
	Path      string `json:"path"`
}

// TracingConfig controls the OpenTelemetry instrument.
type TracingConfig struct {
	Enabled    bool   `json:"enabled"`
	TracerName string `json:"tracerName"`
}

// LiveConfig configures the demo server started by `cellgraph serve`.
type LiveConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr"`

	// Path is the websocket route.
	Path string `json:"path"`

	// WriteTimeout bounds a single websocket write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout"`

	// TickInterval is how often the demo list is reshuffled (e.g., "1s").
	TickInterval string `json:"tickInterval"`

	// Items is the length of the demo list.
	Items int `json:"items"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			CycleLimit: reactive.DefaultCycleLimit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
			Path:      DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			TracerName: DefaultTracerName,
		},
		Live: LiveConfig{
			Addr:         DefaultAddr,
			Path:         DefaultLivePath,
			WriteTimeout: DefaultWriteTimeout,
			TickInterval: DefaultTickInterval,
			Items:        DefaultItems,
		},
	}
}

// Load reads cellgraph.json from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. Fields absent
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'cellgraph serve' without --config to use the defaults")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		e := errors.New("E120").
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON").
			Wrap(err)
		var syntax *json.SyntaxError
		var typ *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntax):
			e.WithOffset(path, data, syntax.Offset)
		case stderrors.As(err, &typ):
			e.WithOffset(path, data, typ.Offset)
		}
		return nil, e
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Scheduler.CycleLimit == 0 {
		c.Scheduler.CycleLimit = reactive.DefaultCycleLimit
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultTracerName
	}
	if c.Live.Addr == "" {
		c.Live.Addr = DefaultAddr
	}
	if c.Live.Path == "" {
		c.Live.Path = DefaultLivePath
	}
	if c.Live.WriteTimeout == "" {
		c.Live.WriteTimeout = DefaultWriteTimeout
	}
	if c.Live.TickInterval == "" {
		c.Live.TickInterval = DefaultTickInterval
	}
	if c.Live.Items == 0 {
		c.Live.Items = DefaultItems
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Scheduler.CycleLimit < 1 {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("scheduler.cycleLimit must be at least 1, got %d", c.Scheduler.CycleLimit))
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("E121").
			WithDetail(fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("E122").
			WithDetail("metrics.path must start with /")
	}
	if !strings.HasPrefix(c.Live.Path, "/") {
		return errors.New("E122").
			WithDetail("live.path must start with /")
	}
	if c.Live.Path == c.Metrics.Path {
		return errors.New("E122").
			WithDetail("live.path and metrics.path must differ")
	}
	for name, value := range map[string]string{
		"live.writeTimeout": c.Live.WriteTimeout,
		"live.tickInterval": c.Live.TickInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.New("E122").
				WithDetail(fmt.Sprintf("%s %q is not a duration", name, value)).
				WithExample(`"30s", "500ms"`).
				Wrap(err)
		}
		if d <= 0 {
			return errors.New("E122").
				WithDetail(name + " must be positive")
		}
	}
	if c.Live.Items < 1 {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("live.items must be at least 1, got %d", c.Live.Items))
	}
	return nil
}

// WriteTimeout returns live.writeTimeout, or the default if it does not parse.
func (c *Config) WriteTimeout() time.Duration {
	return durationOr(c.Live.WriteTimeout, DefaultWriteTimeout)
}

// TickInterval returns live.tickInterval, or the default if it does not parse.
func (c *Config) TickInterval() time.Duration {
	return durationOr(c.Live.TickInterval, DefaultTickInterval)
}

func durationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// Level returns the configured slog level, defaulting to Info.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// NewLogger builds the logger described by the log section, writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find one containing cellgraph.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E141").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// Resolve loads the configuration for a CLI invocation. An explicit path
// must exist. Without one, the nearest cellgraph.json above dir is used, and
// the defaults apply when there is none.
func Resolve(path, dir string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	root, err := FindProjectRoot(dir)
	if err != nil {
		return New(), nil
	}
	return Load(root)
}
