// Package config loads the server/worker configuration from the YAML
// file named by WPYS_CONFIG_FILE.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opengeo/wpys-go/internal/errs"
)

const ConfigEnvName = "WPYS_CONFIG_FILE"

// ServiceInfo is the descriptive metadata returned in GetCapabilities.
type ServiceInfo struct {
	Title                    string   `yaml:"title"`
	Abstract                 string   `yaml:"abstract"`
	Keywords                 []string `yaml:"keywords"`
	Fees                     string   `yaml:"fees"`
	AccessConstraints        string   `yaml:"access_constraints"`
	ProviderName             string   `yaml:"provider_name"`
	ProviderSite             string   `yaml:"provider_site"`
	IndividualName           string   `yaml:"individual_name"`
	ElectronicalMailAddress  string   `yaml:"electronical_mail_address"`
}

// ProcessConfig names the process handlers to register at startup.
// Locations is loaded but not read by either command: cmd/wpys-worker
// and cmd/wpys-server both register every sample process through
// sample.RegisterAll, whatever Locations lists.
type ProcessConfig struct {
	Locations []string `yaml:"locations"`
}

// Config is the root configuration document.
type Config struct {
	MainEndpointName   string `yaml:"main_endpoint_name"`
	ResultEndpointName string `yaml:"result_endpoint_name"`
	ResultChunkSize    int    `yaml:"result_chunk_size"`

	BrokerType    string         `yaml:"broker_type"`
	BrokerOptions map[string]any `yaml:"broker_options"`

	ResultBackendType    string         `yaml:"result_backend_type"`
	ResultBackendOptions map[string]any `yaml:"result_backend_options"`

	ExpirationTimeSeconds float64  `yaml:"-"`
	ExpirationTimeRaw     *float64 `yaml:"expiration_time"`
	HasExpirationTime     bool     `yaml:"-"`

	Debug       bool `yaml:"debug"`
	PrettyPrint bool `yaml:"pretty_print"`

	ServiceInfo   ServiceInfo   `yaml:"service_info"`
	ProcessConfig ProcessConfig `yaml:"process_config"`

	Logging map[string]any `yaml:"logging"`

	// EnablePauseResume gates the optional Pause/Resume dispatcher
	// operations; off by default.
	EnablePauseResume bool `yaml:"enable_pause_resume"`
}

// ExpirationTime returns the configured job TTL, if any.
func (c Config) ExpirationTime() (time.Duration, bool) {
	if !c.HasExpirationTime {
		return 0, false
	}
	return time.Duration(c.ExpirationTimeSeconds * float64(time.Second)), true
}

func defaults() Config {
	return Config{
		MainEndpointName:   "/",
		ResultEndpointName: "/result/:job_id/:result_name",
		ResultChunkSize:    65535,
		BrokerType:         "redis",
		ResultBackendType:  "redis",
		PrettyPrint:        true,
	}
}

// Load reads and parses the YAML file at path. An empty path falls
// back to the WPYS_CONFIG_FILE environment variable.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnvName)
	}
	if path == "" {
		return Config{}, errs.New(errs.KindConfig, "unable to load configuration, is "+ConfigEnvName+" set?")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.KindConfig, "reading config file "+path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.KindConfig, "parsing config file "+path, err)
	}
	if cfg.ExpirationTimeRaw != nil {
		cfg.ExpirationTimeSeconds = *cfg.ExpirationTimeRaw
		cfg.HasExpirationTime = true
	}
	if cfg.ResultChunkSize <= 0 {
		return Config{}, errs.New(errs.KindConfig, "result_chunk_size must be positive")
	}
	return cfg, nil
}
