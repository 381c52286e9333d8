package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"swarmcal/internal/fileutil"
)

// EnvPrefix prefixes environment overrides, e.g.
// SWARMCAL_FOURSQUARE_ACCESS_TOKEN overrides foursquare.access_token.
const EnvPrefix = "SWARMCAL"

// MaxPageSize is the largest page the check-ins endpoint will return.
const MaxPageSize = 250

// ErrNewConfig is returned by Load when it had to create a default file.
var ErrNewConfig = errors.New("default config written; fill in foursquare.access_token and re-run")

// Kind selects the output sink.
type Kind string

const (
	KindICS    Kind = "ics"
	KindKML    Kind = "kml"
	KindCalDAV Kind = "caldav"
)

// Kinds lists the supported output kinds in display order.
var Kinds = []Kind{KindICS, KindKML, KindCalDAV}

// ParseKind validates a user-supplied output kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q (want ics, kml or caldav)", s)
}

// FoursquareConfig holds the upstream API session settings.
type FoursquareConfig struct {
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	// APIVersion is sent as the `v` query parameter.
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
	PageSize   int    `yaml:"page_size" mapstructure:"page_size"`
	// MaxCheckins caps --all fetches. Zero means no cap.
	MaxCheckins int `yaml:"max_checkins" mapstructure:"max_checkins"`
	// TimeoutSeconds of zero leaves the net/http default in place.
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	// CheckinURLBase overrides "<user canonicalUrl>/checkin".
	CheckinURLBase string `yaml:"checkin_url_base" mapstructure:"checkin_url_base"`
}

// LocalConfig holds the file sink destinations.
type LocalConfig struct {
	ICSPath      string `yaml:"ics_path" mapstructure:"ics_path"`
	KMLPath      string `yaml:"kml_path" mapstructure:"kml_path"`
	CalendarName string `yaml:"calendar_name" mapstructure:"calendar_name"`
}

// CalDAVConfig holds the remote calendar connection settings.
type CalDAVConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`
	CalendarName string `yaml:"calendar_name" mapstructure:"calendar_name"`
}

// Config is the top-level application configuration.
type Config struct {
	Foursquare FoursquareConfig `yaml:"foursquare" mapstructure:"foursquare"`
	Local      LocalConfig      `yaml:"local" mapstructure:"local"`
	CalDAV     CalDAVConfig     `yaml:"caldav" mapstructure:"caldav"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Foursquare: FoursquareConfig{
			BaseURL:    "https://api.foursquare.com/v2",
			APIVersion: "20240101",
			PageSize:   MaxPageSize,
		},
		Local: LocalConfig{
			ICSPath:      "checkins.ics",
			KMLPath:      "checkins.kml",
			CalendarName: "Foursquare",
		},
		CalDAV: CalDAVConfig{
			CalendarName: "Foursquare",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled files still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Foursquare.BaseURL == "" {
		c.Foursquare.BaseURL = def.Foursquare.BaseURL
	}
	c.Foursquare.BaseURL = strings.TrimRight(c.Foursquare.BaseURL, "/")
	if c.Foursquare.APIVersion == "" {
		c.Foursquare.APIVersion = def.Foursquare.APIVersion
	}
	if c.Foursquare.PageSize <= 0 {
		c.Foursquare.PageSize = def.Foursquare.PageSize
	}
	if c.Local.ICSPath == "" {
		c.Local.ICSPath = def.Local.ICSPath
	}
	if c.Local.KMLPath == "" {
		c.Local.KMLPath = def.Local.KMLPath
	}
	if c.Local.CalendarName == "" {
		c.Local.CalendarName = def.Local.CalendarName
	}
	if strings.TrimSpace(c.CalDAV.CalendarName) == "" {
		c.CalDAV.CalendarName = def.CalDAV.CalendarName
	}
}

// Validate checks that everything the given output kind needs is present.
func (c *Config) Validate(kind Kind) error {
	if c.Foursquare.AccessToken == "" {
		return errors.New("foursquare.access_token is required")
	}
	if c.Foursquare.PageSize < 1 || c.Foursquare.PageSize > MaxPageSize {
		return fmt.Errorf("foursquare.page_size must be between 1 and %d, got %d", MaxPageSize, c.Foursquare.PageSize)
	}
	if c.Foursquare.MaxCheckins < 0 {
		return errors.New("foursquare.max_checkins must not be negative")
	}
	if c.Foursquare.TimeoutSeconds < 0 {
		return errors.New("foursquare.timeout_seconds must not be negative")
	}

	switch kind {
	case KindICS:
		if c.Local.ICSPath == "" {
			return errors.New("local.ics_path is required for kind ics")
		}
	case KindKML:
		if c.Local.KMLPath == "" {
			return errors.New("local.kml_path is required for kind kml")
		}
	case KindCalDAV:
		if c.CalDAV.URL == "" {
			return errors.New("caldav.url is required for kind caldav")
		}
		if c.CalDAV.Username == "" {
			return errors.New("caldav.username is required for kind caldav")
		}
		if strings.TrimSpace(c.CalDAV.CalendarName) == "" {
			return errors.New("caldav.calendar_name is required for kind caldav")
		}
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

// Load loads configuration from the given YAML path, applying
// SWARMCAL_* environment overrides on top.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config together with ErrNewConfig
//   - If the file exists:
//   - read YAML, overlay environment, unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, fmt.Errorf("%w: %s", ErrNewConfig, path)
		}
		return nil, err
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// newViper returns a viper instance that knows every config key, so
// AutomaticEnv can resolve overrides for keys missing from the file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("foursquare.access_token", "")
	v.SetDefault("foursquare.base_url", def.Foursquare.BaseURL)
	v.SetDefault("foursquare.api_version", def.Foursquare.APIVersion)
	v.SetDefault("foursquare.page_size", def.Foursquare.PageSize)
	v.SetDefault("foursquare.max_checkins", 0)
	v.SetDefault("foursquare.timeout_seconds", 0)
	v.SetDefault("foursquare.checkin_url_base", "")
	v.SetDefault("local.ics_path", def.Local.ICSPath)
	v.SetDefault("local.kml_path", def.Local.KMLPath)
	v.SetDefault("local.calendar_name", def.Local.CalendarName)
	v.SetDefault("caldav.url", "")
	v.SetDefault("caldav.username", "")
	v.SetDefault("caldav.password", "")
	v.SetDefault("caldav.calendar_name", def.CalDAV.CalendarName)
	return v
}

// Save writes the given configuration to path as YAML, atomically and
// with 0600 permissions since the file holds credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteFileAtomic(path, data, 0o600)
}
