package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/vburojevic/tracesink/internal/domain"
)

// fileConfig mirrors the on-disk YAML schema.
type fileConfig struct {
	TraceOverride string            `mapstructure:"trace_override"`
	Destinations  []fileDestination `mapstructure:"destinations"`
}

type fileDestination struct {
	Name             string       `mapstructure:"name"`
	Type             string       `mapstructure:"type"`
	BufferSizeMB     int          `mapstructure:"buffer_size_mb"`
	Directory        string       `mapstructure:"directory"`
	FilenameTemplate string       `mapstructure:"filename_template"`
	RotationSeconds  int          `mapstructure:"rotation_interval"`
	TimestampLocal   bool         `mapstructure:"timestamp_local"`
	Hostname         string       `mapstructure:"hostname"`
	Port             int          `mapstructure:"port"`
	MaximumAge       int          `mapstructure:"maximum_age"`
	MaximumSizeBytes int64        `mapstructure:"maximum_size_bytes"`
	Filters          []string     `mapstructure:"filters"`
	Sources          []fileSource `mapstructure:"sources"`
}

type fileSource struct {
	Name        string `mapstructure:"name"`
	ProviderID  string `mapstructure:"provider_id"`
	MinimumLevel string `mapstructure:"minimum_level"`
	KeywordsHex string `mapstructure:"keywords_hex"`
}

// LoadFromFile loads a snapshot from a specific YAML file.
func LoadFromFile(path string) (Global, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Global{}, err
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Global{}, err
	}
	return fc.toGlobal()
}

// Load searches the standard locations for a tracesink config file and
// loads the first hit. A missing file yields an empty snapshot.
// Search order (highest precedence first):
//  1. ./.tracesink.yaml or ./.tracesink.yml
//  2. ~/.tracesink.yaml or ~/.tracesink.yml
//  3. $XDG_CONFIG_HOME/tracesink/config.yaml
//  4. /etc/tracesink/config.yaml
func Load() (Global, error) {
	path := findConfigFile()
	if path == "" {
		return NewGlobal(), nil
	}
	return LoadFromFile(path)
}

// ConfigFile returns the path to the config file that Load would use.
func ConfigFile() string {
	return findConfigFile()
}

func findConfigFile() string {
	names := []string{".tracesink.yaml", ".tracesink.yml", "tracesink.yaml", "tracesink.yml"}

	var searchPaths []string
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, home)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(configDir, "tracesink"))
	}
	searchPaths = append(searchPaths, "/etc/tracesink")

	for _, dir := range searchPaths {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		path := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (fc fileConfig) toGlobal() (Global, error) {
	g := NewGlobal()

	override, err := parseOverride(fc.TraceOverride)
	if err != nil {
		return Global{}, err
	}
	g.TraceOverride = override

	for _, fd := range fc.Destinations {
		d, err := fd.toDestination()
		if err != nil {
			return Global{}, err
		}
		g.Add(d)
	}
	return g, nil
}

func (fd fileDestination) toDestination() (*Destination, error) {
	d := &Destination{
		Name:             fd.Name,
		Type:             DestinationType(fd.Type),
		BufferSizeMB:     fd.BufferSizeMB,
		Directory:        fd.Directory,
		FilenameTemplate: fd.FilenameTemplate,
		RotationInterval: time.Duration(fd.RotationSeconds) * time.Second,
		TimestampLocal:   fd.TimestampLocal,
		Hostname:         fd.Hostname,
		Port:             fd.Port,
		MaximumAge:       time.Duration(fd.MaximumAge) * time.Second,
		MaximumSizeBytes: fd.MaximumSizeBytes,
		Filters:          append([]string(nil), fd.Filters...),
	}

	for _, src := range fd.Sources {
		sub := Subscription{
			Name:         src.Name,
			MinimumLevel: domain.ParseSeverity(src.MinimumLevel),
		}
		if src.ProviderID != "" {
			id, err := uuid.Parse(src.ProviderID)
			if err != nil {
				return nil, fmt.Errorf("%w: destination %q: bad provider id %q", domain.ErrInvalidConfiguration, fd.Name, src.ProviderID)
			}
			sub.ProviderID = id
		}
		if src.KeywordsHex != "" {
			mask, err := strconv.ParseUint(src.KeywordsHex, 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: destination %q: bad keyword mask %q", domain.ErrInvalidConfiguration, fd.Name, src.KeywordsHex)
			}
			sub.Keywords = mask
		}
		d.Subscriptions = append(d.Subscriptions, sub)
	}
	return d, nil
}

func parseOverride(s string) (TraceOverride, error) {
	switch s {
	case "":
		return OverrideUnset, nil
	case "force_enabled", "enabled":
		return OverrideForceEnabled, nil
	case "force_disabled", "disabled":
		return OverrideForceDisabled, nil
	default:
		return OverrideUnset, fmt.Errorf("%w: unknown trace override %q", domain.ErrInvalidConfiguration, s)
	}
}
