package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"

	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/infra"
)

// FileName is the config file looked up in the install directory.
const FileName = "launcher.toml"

// Config is the launcher configuration.
type Config struct {
	AppDir    string          `toml:"app_dir"`
	Backend   BackendConfig   `toml:"backend"`
	Readiness ReadinessConfig `toml:"readiness"`
	Window    WindowConfig    `toml:"window"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	// DeployEnv is the raw DEPLOY_ENV value. It only comes from the environment.
	DeployEnv string `toml:"-"`
}

type BackendConfig struct {
	Port                 int      `toml:"port"`
	Interpreter          string   `toml:"interpreter"`
	Script               string   `toml:"script"`
	WindowsExecutable    string   `toml:"windows_executable"`
	LinuxExecutable      string   `toml:"linux_executable"`
	PassPortInProduction bool     `toml:"pass_port_in_production"`
	PortEnv              string   `toml:"port_env"`
	StopTimeout          Duration `toml:"stop_timeout"`
	KillGrace            Duration `toml:"kill_grace"`
}

type ReadinessConfig struct {
	Timeout    Duration `toml:"timeout"`
	Interval   Duration `toml:"interval"`
	HealthPath string   `toml:"health_path"`
}

type WindowConfig struct {
	Title                 string   `toml:"title"`
	Width                 int      `toml:"width"`
	Height                int      `toml:"height"`
	Icon                  string   `toml:"icon"`
	DevURL                string   `toml:"dev_url"`
	ProdContent           string   `toml:"prod_content"`
	DevTools              *bool    `toml:"devtools"`
	StayResidentPlatforms []string `toml:"stay_resident_platforms"`
	SingleInstanceID      string   `toml:"single_instance_id"`
}

type LogConfig struct {
	Level       string   `toml:"level"`
	Development bool     `toml:"development"`
	OutputPaths []string `toml:"output_paths"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// envOverrides are read only under the LAUNCHER_ prefix. An envconfig
// name tag would also make the bare name an alternate key, so names come
// from split_words. Unset variables leave the pointer nil so file values
// survive.
type envOverrides struct {
	AppDir      *string `split_words:"true"`
	BackendPort *int    `split_words:"true"`
	LogLevel    *string `split_words:"true"`
	LogDev      *bool   `split_words:"true"`
	MetricsAddr *string `split_words:"true"`
}

type deployEnv struct {
	Value string `envconfig:"DEPLOY_ENV"`
}

// Default returns the built-in configuration. AppDir is left empty and
// resolved from the executable location by Load.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Port:              domain.DefaultBackendPort,
			Interpreter:       "python",
			Script:            "main.py",
			WindowsExecutable: filepath.Join("dist", "tridentframe_win", "main.exe"),
			LinuxExecutable:   filepath.Join("release", "tridentframe_linux", "main"),
			PortEnv:           "BACKEND_PORT",
			StopTimeout:       Duration{5 * time.Second},
			KillGrace:         Duration{2 * time.Second},
		},
		Readiness: ReadinessConfig{
			Timeout:  Duration{10 * time.Second},
			Interval: Duration{100 * time.Millisecond},
		},
		Window: WindowConfig{
			Title:                 "TridentFrame",
			Width:                 950,
			Height:                700,
			Icon:                  filepath.Join("imgs", "TridentFrame_Icon_200px.png"),
			DevURL:                "http://localhost:8080/",
			ProdContent:           filepath.Join("release", "html", "index.html"),
			StayResidentPlatforms: []string{"darwin"},
			SingleInstanceID:      "com.tridentframe.launcher",
		},
		Log: LogConfig{
			Level:       "info",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path, then
// environment overrides. An empty path means <appDir>/launcher.toml, and a
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	var env envOverrides
	if err := envconfig.Process("LAUNCHER", &env); err != nil {
		return Config{}, fmt.Errorf("env overrides: %w", err)
	}
	var deploy deployEnv
	if err := envconfig.Process("", &deploy); err != nil {
		return Config{}, fmt.Errorf("env overrides: %w", err)
	}

	if strings.TrimSpace(path) == "" {
		var override string
		if env.AppDir != nil {
			override = *env.AppDir
		}
		dir, err := infra.ResolveAppDir(override)
		if err != nil {
			return Config{}, err
		}
		path = filepath.Join(dir, FileName)
	}

	if err := decodeFile(infra.ExpandHome(path), &cfg); err != nil {
		return Config{}, err
	}

	env.apply(&cfg)
	cfg.DeployEnv = deploy.Value

	dir, err := infra.ResolveAppDir(cfg.AppDir)
	if err != nil {
		return Config{}, err
	}
	cfg.AppDir = dir

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (e envOverrides) apply(cfg *Config) {
	if e.AppDir != nil && strings.TrimSpace(*e.AppDir) != "" {
		cfg.AppDir = *e.AppDir
	}
	if e.BackendPort != nil {
		cfg.Backend.Port = *e.BackendPort
	}
	if e.LogLevel != nil {
		cfg.Log.Level = *e.LogLevel
	}
	if e.LogDev != nil {
		cfg.Log.Development = *e.LogDev
	}
	if e.MetricsAddr != nil {
		cfg.Metrics.Addr = *e.MetricsAddr
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		errs = append(errs, fmt.Errorf("backend.port %d out of range", c.Backend.Port))
	}
	if strings.TrimSpace(c.Backend.Interpreter) == "" {
		errs = append(errs, errors.New("backend.interpreter is empty"))
	}
	if c.Backend.StopTimeout.Duration <= 0 {
		errs = append(errs, errors.New("backend.stop_timeout must be positive"))
	}
	if c.Backend.KillGrace.Duration < 0 {
		errs = append(errs, errors.New("backend.kill_grace must not be negative"))
	}
	if c.Readiness.Interval.Duration <= 0 {
		errs = append(errs, errors.New("readiness.interval must be positive"))
	}
	if c.Readiness.Timeout.Duration < 0 {
		errs = append(errs, errors.New("readiness.timeout must not be negative"))
	}
	if c.Readiness.HealthPath != "" && !strings.HasPrefix(c.Readiness.HealthPath, "/") {
		errs = append(errs, fmt.Errorf("readiness.health_path %q must start with /", c.Readiness.HealthPath))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Mode is the deployment mode selected by DEPLOY_ENV.
func (c Config) Mode() domain.DeploymentMode {
	return domain.ParseDeploymentMode(c.DeployEnv)
}

// Path joins a relative path onto AppDir. Absolute paths pass through.
func (c Config) Path(p string) string {
	p = infra.ExpandHome(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.AppDir, p)
}
