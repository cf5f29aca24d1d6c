package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	// EnvPrefix prefixes the environment variables that override the file.
	EnvPrefix = "SPECQC_"

	WorkersDefault = 4
	PortDefault    = 8080
)

// Config represents app config object.
type Config struct {
	DataDir       string   `yaml:"data_dir"`
	ReportDir     string   `yaml:"report_dir"`
	ModelPath     string   `yaml:"model_path"`
	Database      string   `yaml:"database"`
	Workers       int      `yaml:"workers"`
	Port          int      `yaml:"port"`
	ReportFormats []string `yaml:"report_formats"`
	// Alpha overrides the control limit significance of the model when > 0.
	Alpha float64 `yaml:"alpha,omitempty"`
}

// Default returns the config rooted in the app home dir.
func Default(home string) *Config {
	return &Config{
		DataDir:       filepath.Join(home, "data"),
		ReportDir:     filepath.Join(home, "reports"),
		ModelPath:     filepath.Join(home, "model.json"),
		Database:      filepath.Join(home, "data.db"),
		Workers:       WorkersDefault,
		Port:          PortDefault,
		ReportFormats: []string{"pdf"},
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir required")
	}
	if c.ReportDir == "" {
		return errors.New("report_dir required")
	}
	if c.ModelPath == "" {
		return errors.New("model_path required")
	}
	if c.Database == "" {
		return errors.New("database required")
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("invalid port: %d", c.Port)
	}
	if c.Alpha < 0 || c.Alpha >= 1 {
		return errors.Errorf("alpha must be in [0, 1), got %v", c.Alpha)
	}
	return nil
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", configFileName)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(dirPath, dirMode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	j, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer j.Close()

	b, err := io.ReadAll(j)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}

	// missing keys keep their defaults
	c := Default(dirPath)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file %s", path)
	}
	return c, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "failed to load env file: %s", p)
		}
		slog.Debug("env file loaded", "path", p)
	}
	return nil
}

// ApplyEnv overrides c with SPECQC_* environment variables.
func ApplyEnv(c *Config) error {
	if c == nil {
		return errors.New("config required")
	}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("DATA_DIR", &c.DataDir)
	str("REPORT_DIR", &c.ReportDir)
	str("MODEL_PATH", &c.ModelPath)
	str("DATABASE", &c.Database)

	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sWORKERS: %s", EnvPrefix, v)
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sPORT: %s", EnvPrefix, v)
		}
		c.Port = n
	}
	if v := os.Getenv(EnvPrefix + "ALPHA"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %sALPHA: %s", EnvPrefix, v)
		}
		c.Alpha = a
	}
	if v := os.Getenv(EnvPrefix + "REPORT_FORMATS"); v != "" {
		c.ReportFormats = SplitList(v)
	}

	return nil
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(v string) []string {
	list := make([]string, 0)
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
