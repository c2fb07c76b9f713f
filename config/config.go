package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"linuxst/transcriber"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	appName = "linuxst"

	DefaultStopTimeout = 30 * time.Second
)

type Config struct {
	ConfigPath string

	StateDir  string // marker and last session outcome
	BackupDir string // last transcript
	LogPath   string

	Device   string
	Delivery string // auto, keystroke, clipboard
	Detector string // vad, energy, none

	Engine     string // whisper, groq, openai; empty picks by available keys
	Language   string
	WhisperBin string
	ModelDir   string
	Models     []string
	Threads    int
	GroqKey    string
	OpenAIKey  string

	MinDuration       time.Duration
	MaxDuration       time.Duration
	StopTimeout       time.Duration
	TranscribeTimeout time.Duration

	Notify bool
	Beep   bool
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

type fileConfig struct {
	StateDir  string `toml:"state_dir,omitempty"`
	BackupDir string `toml:"backup_dir,omitempty"`
	LogPath   string `toml:"log_path,omitempty"`

	Device   string `toml:"device,omitempty"`
	Delivery string `toml:"delivery,omitempty"`
	Detector string `toml:"detector,omitempty"`

	Engine     string   `toml:"engine,omitempty"`
	Language   string   `toml:"language,omitempty"`
	WhisperBin string   `toml:"whisper_bin,omitempty"`
	ModelDir   string   `toml:"model_dir,omitempty"`
	Models     []string `toml:"models,omitempty"`
	Threads    int      `toml:"threads,omitempty"`
	GroqKey    string   `toml:"groq_api_key,omitempty"`
	OpenAIKey  string   `toml:"openai_api_key,omitempty"`

	MinDuration       *duration `toml:"min_duration,omitempty"`
	MaxDuration       *duration `toml:"max_duration,omitempty"`
	StopTimeout       *duration `toml:"stop_timeout,omitempty"`
	TranscribeTimeout *duration `toml:"transcribe_timeout,omitempty"`

	Notify *bool `toml:"notify,omitempty"`
	Beep   *bool `toml:"beep,omitempty"`
}

func Defaults() *Config {
	return &Config{
		ConfigPath:  filepath.Join(configDir(), "config.toml"),
		StateDir:    defaultStateDir(),
		BackupDir:   defaultBackupDir(),
		Delivery:    "auto",
		Detector:    "vad",
		WhisperBin:  "whisper-cli",
		ModelDir:    defaultModelDir(),
		Models:      []string{"tiny", "base"},
		Threads:     4,
		StopTimeout: DefaultStopTimeout,
		Notify:      true,
		Beep:        true,
	}
}

// Load layers defaults, config.toml, the env file next to it and the
// process environment, in that order. path overrides the config file
// location; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		path = os.Getenv("LINUXST_CONFIG")
	}
	if path != "" {
		cfg.ConfigPath = expandTilde(path)
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(cfg.ConfigPath, &fc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", cfg.ConfigPath, err)
	}
	cfg.applyFile(&fc)

	envFile := filepath.Join(filepath.Dir(cfg.ConfigPath), "env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyFile(fc *fileConfig) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&c.StateDir, expandTilde(fc.StateDir))
	setStr(&c.BackupDir, expandTilde(fc.BackupDir))
	setStr(&c.LogPath, expandTilde(fc.LogPath))
	setStr(&c.Device, fc.Device)
	setStr(&c.Delivery, fc.Delivery)
	setStr(&c.Detector, fc.Detector)
	setStr(&c.Engine, fc.Engine)
	setStr(&c.Language, fc.Language)
	setStr(&c.WhisperBin, expandTilde(fc.WhisperBin))
	setStr(&c.ModelDir, expandTilde(fc.ModelDir))
	setStr(&c.GroqKey, fc.GroqKey)
	setStr(&c.OpenAIKey, fc.OpenAIKey)
	if len(fc.Models) > 0 {
		c.Models = fc.Models
	}
	if fc.Threads > 0 {
		c.Threads = fc.Threads
	}
	for dst, src := range map[*time.Duration]*duration{
		&c.MinDuration:       fc.MinDuration,
		&c.MaxDuration:       fc.MaxDuration,
		&c.StopTimeout:       fc.StopTimeout,
		&c.TranscribeTimeout: fc.TranscribeTimeout,
	} {
		if src != nil {
			*dst = src.Duration
		}
	}
	if fc.Notify != nil {
		c.Notify = *fc.Notify
	}
	if fc.Beep != nil {
		c.Beep = *fc.Beep
	}
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LINUXST_STATE_DIR":   &c.StateDir,
		"LINUXST_BACKUP_DIR":  &c.BackupDir,
		"LINUXST_DEVICE":      &c.Device,
		"LINUXST_DELIVERY":    &c.Delivery,
		"LINUXST_DETECTOR":    &c.Detector,
		"LINUXST_ENGINE":      &c.Engine,
		"LINUXST_LANGUAGE":    &c.Language,
		"LINUXST_WHISPER_BIN": &c.WhisperBin,
		"LINUXST_MODEL_DIR":   &c.ModelDir,
		"GROQ_API_KEY":        &c.GroqKey,
		"OPENAI_API_KEY":      &c.OpenAIKey,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	durs := map[string]*time.Duration{
		"LINUXST_MIN_DURATION":       &c.MinDuration,
		"LINUXST_MAX_DURATION":       &c.MaxDuration,
		"LINUXST_STOP_TIMEOUT":       &c.StopTimeout,
		"LINUXST_TRANSCRIBE_TIMEOUT": &c.TranscribeTimeout,
	}
	for key, dst := range durs {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	bools := map[string]*bool{
		"LINUXST_NOTIFY": &c.Notify,
		"LINUXST_BEEP":   &c.Beep,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	if v := os.Getenv("LINUXST_MODELS"); v != "" {
		c.Models = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Delivery {
	case "auto", "keystroke", "clipboard":
	default:
		return fmt.Errorf("delivery: unknown mode %q", c.Delivery)
	}
	switch c.Detector {
	case "vad", "energy", "none":
	default:
		return fmt.Errorf("detector: unknown detector %q", c.Detector)
	}
	switch c.Engine {
	case "", "whisper", "groq", "openai":
	default:
		return fmt.Errorf("engine: unknown engine %q", c.Engine)
	}
	if c.MinDuration < 0 || c.MaxDuration < 0 || c.StopTimeout < 0 || c.TranscribeTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return nil
}

func (c *Config) Transcriber() transcriber.Config {
	return transcriber.Config{
		Engine:     c.Engine,
		Language:   c.Language,
		WhisperBin: c.WhisperBin,
		ModelDir:   c.ModelDir,
		Models:     c.Models,
		Threads:    c.Threads,
		GroqKey:    c.GroqKey,
		OpenAIKey:  c.OpenAIKey,
		Timeout:    c.TranscribeTimeout,
	}
}

// SaveDevice records the capture device in the config file, keeping any
// other settings already there.
func SaveDevice(path, device string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	fc.Device = device
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "config.toml.tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := toml.NewEncoder(f).Encode(fc); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", appName)
	}
	return filepath.Join(".", "."+appName)
}

func defaultStateDir() string {
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, appName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", appName, os.Getuid()))
}

func defaultBackupDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", appName)
	}
	return defaultStateDir()
}

func defaultModelDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, "models")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", appName, "models")
	}
	return "models"
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
