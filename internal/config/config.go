// Package config loads the bridge's YAML configuration (§6), applying the
// documented defaults and rejecting values that would make startup
// meaningless.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HL7Config configures the MLLP listener (§6).
type HL7Config struct {
	ListenPort        int    `yaml:"ListenPort"`
	ListenIP          string `yaml:"ListenIP"`
	MaxORMsPerPatient int    `yaml:"MaxORMsPerPatient"`
	SenderName        string `yaml:"SenderName"`
	FacilityName      string `yaml:"FacilityName"`
}

// DicomConfig configures the worklist SCP (§6).
type DicomConfig struct {
	AETitle        string `yaml:"AETitle"`
	ListenPort     int    `yaml:"ListenPort"`
	MaxConnections int    `yaml:"MaxConnections"`
	FacilityName   string `yaml:"FacilityName"`
}

// CacheConfig configures the order cache and its janitor (§6).
type CacheConfig struct {
	Folder                  string `yaml:"Folder"`
	RetentionDays           int    `yaml:"RetentionDays"`
	AutoCleanup             bool   `yaml:"AutoCleanup"`
	CleanupIntervalMinutes  int    `yaml:"CleanupIntervalMinutes"`
}

// OrderConfig configures order expiry (§6).
type OrderConfig struct {
	ExpiryHours int `yaml:"ExpiryHours"`
}

// Config is the root configuration document.
type Config struct {
	HL7   HL7Config   `yaml:"HL7"`
	Dicom DicomConfig `yaml:"Dicom"`
	Cache CacheConfig `yaml:"Cache"`
	Order OrderConfig `yaml:"Order"`
}

const configFileName = "config.yaml"

// Load reads <basePath>/config.yaml, if present, applies the §6 defaults
// for anything left unset, resolves Cache.Folder, and validates the
// result. A missing config file is not an error: the bridge runs on
// defaults alone.
func Load(basePath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(filepath.Join(basePath, configFileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configFileName, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("config: read %s: %w", configFileName, err)
	}

	if cfg.Cache.Folder == "" {
		cfg.Cache.Folder = filepath.Join(basePath, "cache")
	} else if !filepath.IsAbs(cfg.Cache.Folder) {
		cfg.Cache.Folder = filepath.Join(basePath, cfg.Cache.Folder)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HL7: HL7Config{
			ListenPort:        7777,
			ListenIP:          "0.0.0.0",
			MaxORMsPerPatient: 5,
		},
		Dicom: DicomConfig{
			AETitle:        "DICOM7_ORM2DICOM",
			ListenPort:     11112,
			MaxConnections: 10,
		},
		Cache: CacheConfig{
			RetentionDays:          3,
			AutoCleanup:            true,
			CleanupIntervalMinutes: 60,
		},
		Order: OrderConfig{
			ExpiryHours: 72,
		},
	}
}

// Validate rejects configuration that would make the bridge meaningless
// to start (zero/negative ports or caps). Unlike the teacher's runtime,
// where a bad config would surface as a mysterious bind failure, this
// turns it into an explicit startup error (§6's "fatal start error").
func (c *Config) Validate() error {
	if c.HL7.ListenPort <= 0 || c.HL7.ListenPort > 65535 {
		return fmt.Errorf("config: HL7.ListenPort out of range: %d", c.HL7.ListenPort)
	}
	if c.Dicom.ListenPort <= 0 || c.Dicom.ListenPort > 65535 {
		return fmt.Errorf("config: Dicom.ListenPort out of range: %d", c.Dicom.ListenPort)
	}
	if c.HL7.MaxORMsPerPatient <= 0 {
		return fmt.Errorf("config: HL7.MaxORMsPerPatient must be positive")
	}
	if c.Dicom.MaxConnections <= 0 {
		return fmt.Errorf("config: Dicom.MaxConnections must be positive")
	}
	if c.Order.ExpiryHours <= 0 {
		return fmt.Errorf("config: Order.ExpiryHours must be positive")
	}
	if c.Dicom.AETitle == "" {
		return fmt.Errorf("config: Dicom.AETitle must not be empty")
	}
	return nil
}
