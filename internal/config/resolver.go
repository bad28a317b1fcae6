// Package config resolves Contaboo settings from built-in defaults, the YAML
// config file, a .env file, the process environment and CLI flags, in that
// order of increasing precedence. Every resolved value records where it
// came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath   = "~/.contaboo/contaboo.db"
	DefaultLogLevel = "info"
	DefaultWorkers  = 4
	DefaultMaskChar = "*"
	DefaultDotenv   = ".env"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries the config file locations and raw CLI flag values.
// Empty CLI fields mean the flag was not given.
type ResolveOptions struct {
	ConfigPath string
	DotenvPath string

	CLIDBPath      string
	CLIDatabaseURL string
	CLILogLevel    string
	CLIWorkers     string
	CLIMaskChar    string
	CLIClean       string
	CLIMetricsAddr string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath        ResolvedValue `json:"db_path"`
	DatabaseURL   ResolvedValue `json:"database_url"`
	LogLevel      ResolvedValue `json:"log_level"`
	Workers       ResolvedValue `json:"workers"`
	MaskChar      ResolvedValue `json:"mask_char"`
	CleanOnImport ResolvedValue `json:"clean_on_import"`
	MetricsAddr   ResolvedValue `json:"metrics_addr"`
}

type fileConfig struct {
	DBPath        string `yaml:"db_path"`
	DatabaseURL   string `yaml:"database_url"`
	LogLevel      string `yaml:"log_level"`
	Workers       string `yaml:"workers"`
	MaskChar      string `yaml:"mask_char"`
	CleanOnImport string `yaml:"clean_on_import"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// envKeys maps each setting to the environment variables that set it. Later
// names win.
var envKeys = []struct {
	field func(*ResolvedConfig) *ResolvedValue
	names []string
}{
	{func(c *ResolvedConfig) *ResolvedValue { return &c.DBPath }, []string{"CONTABOO_DB", "CONTABOO_DB_PATH"}},
	{func(c *ResolvedConfig) *ResolvedValue { return &c.DatabaseURL }, []string{"DATABASE_URL", "CONTABOO_DATABASE_URL"}},
	{func(c *ResolvedConfig) *ResolvedValue { return &c.LogLevel }, []string{"CONTABOO_LOG_LEVEL"}},
	{func(c *ResolvedConfig) *ResolvedValue { return &c.Workers }, []string{"CONTABOO_WORKERS"}},
	{func(c *ResolvedConfig) *ResolvedValue { return &c.MaskChar }, []string{"CONTABOO_MASK_CHAR"}},
	{func(c *ResolvedConfig) *ResolvedValue { return &c.CleanOnImport }, []string{"CONTABOO_CLEAN"}},
	{func(c *ResolvedConfig) *ResolvedValue { return &c.MetricsAddr }, []string{"CONTABOO_METRICS_ADDR"}},
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".contaboo", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	apply(&out.DBPath, DefaultDBPath, SourceDefault, "built-in default")
	apply(&out.LogLevel, DefaultLogLevel, SourceDefault, "built-in default")
	apply(&out.Workers, strconv.Itoa(DefaultWorkers), SourceDefault, "built-in default")
	apply(&out.MaskChar, DefaultMaskChar, SourceDefault, "built-in default")
	apply(&out.CleanOnImport, "false", SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.DatabaseURL, cfg.DatabaseURL, SourceConfig, path)
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		apply(&out.Workers, cfg.Workers, SourceConfig, path)
		apply(&out.MaskChar, cfg.MaskChar, SourceConfig, path)
		apply(&out.CleanOnImport, cfg.CleanOnImport, SourceConfig, path)
		apply(&out.MetricsAddr, cfg.MetricsAddr, SourceConfig, path)
	}

	dotenvPath := firstNonEmpty(opts.DotenvPath, DefaultDotenv)
	dotenv, err := loadDotenv(dotenvPath)
	if err != nil {
		return out, err
	}
	for _, k := range envKeys {
		for _, name := range k.names {
			// A real environment variable always beats the .env entry.
			if _, set := os.LookupEnv(name); set {
				applyEnv(k.field(&out), name)
				continue
			}
			apply(k.field(&out), dotenv[name], SourceEnv, dotenvPath+":"+name)
		}
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.DatabaseURL, opts.CLIDatabaseURL, SourceCLI, "--database-url")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.MaskChar, opts.CLIMaskChar, SourceCLI, "--mask-char")
	apply(&out.CleanOnImport, opts.CLIClean, SourceCLI, "--clean")
	apply(&out.MetricsAddr, opts.CLIMetricsAddr, SourceCLI, "--metrics-addr")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	if err := out.validate(); err != nil {
		return out, err
	}
	return out, nil
}

func (r ResolvedConfig) validate() error {
	if n, err := strconv.Atoi(r.Workers.Value); err != nil || n < 1 {
		return fmt.Errorf("invalid workers %q (from %s): must be a positive integer", r.Workers.Value, r.Workers.From)
	}
	if utf8.RuneCountInString(r.MaskChar.Value) != 1 {
		return fmt.Errorf("invalid mask_char %q (from %s): must be a single character", r.MaskChar.Value, r.MaskChar.From)
	}
	if _, err := strconv.ParseBool(r.CleanOnImport.Value); err != nil {
		return fmt.Errorf("invalid clean_on_import %q (from %s)", r.CleanOnImport.Value, r.CleanOnImport.From)
	}
	switch strings.ToLower(r.LogLevel.Value) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (from %s)", r.LogLevel.Value, r.LogLevel.From)
	}
	return nil
}

// WorkerCount returns the ingest pool size.
func (r ResolvedConfig) WorkerCount() int {
	n, err := strconv.Atoi(r.Workers.Value)
	if err != nil || n < 1 {
		return DefaultWorkers
	}
	return n
}

// MaskRune returns the masking character.
func (r ResolvedConfig) MaskRune() rune {
	c, _ := utf8.DecodeRuneInString(r.MaskChar.Value)
	if c == utf8.RuneError {
		return '*'
	}
	return c
}

// Clean reports whether imports run the auto-cleaner.
func (r ResolvedConfig) Clean() bool {
	b, _ := strconv.ParseBool(r.CleanOnImport.Value)
	return b
}

// Debug reports whether debug logging is on.
func (r ResolvedConfig) Debug() bool {
	return strings.EqualFold(r.LogLevel.Value, "debug")
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// loadDotenv reads KEY=VALUE pairs without touching the process environment.
// A missing file is not an error.
func loadDotenv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return vals, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
