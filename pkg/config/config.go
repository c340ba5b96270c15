package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`

	// DataDir is the root of every app-owned directory that isn't configured
	// explicitly.
	DataDir    string `koanf:"data_dir" default:"/data"`
	LibraryDir string `koanf:"library_dir"`
	CoverDir   string `koanf:"cover_dir"`
	TempDir    string `koanf:"temp_dir"`

	// MaxEntryBytes bounds any single archive entry read during import-time
	// scanning. MaxCoverBytes bounds cover images.
	MaxEntryBytes int64 `koanf:"max_entry_bytes" default:"67108864"`
	MaxCoverBytes int64 `koanf:"max_cover_bytes" default:"10485760"`

	CacheMaxAge    time.Duration `koanf:"cache_max_age" default:"720h"`
	RescanInterval time.Duration `koanf:"rescan_interval" default:"1h"`
	WatchSources   bool          `koanf:"watch_sources" default:"true"`
	WatchDebounce  time.Duration `koanf:"watch_debounce" default:"2s"`

	LogLevel string `koanf:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/config.yaml"
)

// New loads the configuration. Struct defaults are applied first, then the
// YAML file named by CONFIG_FILE (if it exists), then environment variables,
// which take precedence over the file.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file: %s", configFile)
		}
	}

	err := k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"})
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	cfg.fillDirectories()

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a configuration backed by an in-memory database and
// directories rooted at dir.
func NewForTest(dir string) *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.DataDir = dir
	cfg.WatchSources = false
	cfg.fillDirectories()
	return cfg
}

func (cfg *Config) fillDirectories() {
	if cfg.LibraryDir == "" {
		cfg.LibraryDir = filepath.Join(cfg.DataDir, "library")
	}
	if cfg.CoverDir == "" {
		cfg.CoverDir = filepath.Join(cfg.DataDir, "covers")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(cfg.DataDir, "tmp")
	}
}

// Directories lists every app-owned directory that must exist before use.
func (cfg *Config) Directories() []string {
	return []string{cfg.LibraryDir, cfg.CoverDir, cfg.TempDir}
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}

	missing := make([]string, 0, len(verrs))
	invalid := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := toSnakeCase(fe.StructField())
		desc := strings.ToUpper(key) + " (" + key + ")"
		if fe.Tag() == "required" {
			missing = append(missing, desc)
		} else {
			invalid = append(invalid, desc)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return errors.Errorf("invalid config: %s", strings.Join(invalid, ", "))
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
