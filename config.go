package versionit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFile is the tool configuration read when no path is given.
const DefaultConfigFile = ".version-it"

const envPrefix = "VERSION_IT"

// VersionHeader is a file rendered from a handlebars template on every bump.
type VersionHeader struct {
	Path         string `mapstructure:"path"`
	Template     string `mapstructure:"template"`
	TemplatePath string `mapstructure:"template-path"`
}

// PackageFile is a package manifest whose version field is updated on every
// bump.
type PackageFile struct {
	Path    string `mapstructure:"path"`
	Manager string `mapstructure:"manager"`
	Field   string `mapstructure:"field"`
}

// Subproject is a directory of a monorepo versioned independently.
type Subproject struct {
	Path   string `mapstructure:"path"`
	Config string `mapstructure:"config"`
}

// Config is the tool configuration, normally read from .version-it.
type Config struct {
	VersioningScheme   string          `mapstructure:"versioning-scheme"`
	FirstVersion       string          `mapstructure:"first-version"`
	CurrentVersionFile string          `mapstructure:"current-version-file"`
	Channel            string          `mapstructure:"channel"`
	VersionHeaders     []VersionHeader `mapstructure:"version-headers"`
	PackageFiles       []PackageFile   `mapstructure:"package-files"`
	Subprojects        []Subproject    `mapstructure:"subprojects"`
	StructuredOutput   bool            `mapstructure:"structured-output"`
}

// LoadConfig reads the YAML configuration at path. Environment variables
// prefixed with VERSION_IT_ override file values, for example
// VERSION_IT_VERSIONING_SCHEME.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"versioning-scheme", "first-version", "current-version-file", "channel"} {
		_ = v.BindEnv(key)
	}
	v.SetDefault("versioning-scheme", string(SchemeSemantic))

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConfigIfExists is LoadConfig returning a nil config when path does not
// exist.
func LoadConfigIfExists(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadConfig(path)
}

// Validate checks field values that cannot be caught while decoding.
func (c *Config) Validate() error {
	if _, err := ParseScheme(c.VersioningScheme); err != nil {
		return err
	}
	for _, h := range c.VersionHeaders {
		if h.Path == "" {
			return errors.New("version header requires a path")
		}
	}
	for _, p := range c.PackageFiles {
		if p.Path == "" || p.Manager == "" {
			return errors.New("package file requires a path and a manager")
		}
	}
	for _, s := range c.Subprojects {
		if s.Path == "" {
			return errors.New("subproject requires a path")
		}
	}
	return nil
}

// Scheme returns the configured versioning scheme.
func (c *Config) Scheme() Scheme {
	s, err := ParseScheme(c.VersioningScheme)
	if err != nil {
		return SchemeSemantic
	}
	return s
}

// CurrentVersion returns the trimmed content of the current version file when
// one is configured, otherwise the first version. Relative paths are resolved
// against baseDir.
func (c *Config) CurrentVersion(baseDir string) (string, error) {
	if c.CurrentVersionFile != "" {
		data, err := os.ReadFile(resolvePath(baseDir, c.CurrentVersionFile))
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !errors.Is(err, os.ErrNotExist) || c.FirstVersion == "" {
			return "", fmt.Errorf("reading current version file: %w", err)
		}
		logger.Debug("current version file missing, using first version", "path", c.CurrentVersionFile)
	}
	if c.FirstVersion == "" {
		return "", errors.New("no current-version-file or first-version configured")
	}
	return c.FirstVersion, nil
}

func resolvePath(baseDir, p string) string {
	if baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
