package main

import (
	"fmt"
	"strings"

	"github.com/ghodss/yaml"
)

// Config is the config format for the demo relying party.
type Config struct {
	Issuer       string            `json:"issuer"`
	ListenAddr   string            `json:"listenAddr"`
	MetricsAddr  string            `json:"metricsAddr"`
	ReturnToBase string            `json:"returnToBase"`
	Dumb         bool              `json:"dumb"`
	Endpoints    map[string]Server `json:"endpoints"`
	Logger       Logger            `json:"logger"`
}

// Server is a statically configured provider endpoint. Full Yadis/HTML
// discovery is out of scope for this implementation, so the demo resolves
// identifiers through this fixed map instead.
type Server struct {
	IdentityURL string `json:"identityURL"`
	ServerID    string `json:"serverID"`
	ServerURL   string `json:"serverURL"`
}

// Logger configures the demo's logrus backend.
type Logger struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig parses a YAML config file.
func LoadConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return c, nil
}

// Validate checks the config is complete enough to serve.
func (c Config) Validate() error {
	checks := []struct {
		bad    bool
		errMsg string
	}{
		{c.Issuer == "", "no issuer specified in config file"},
		{c.ListenAddr == "", "no listenAddr specified in config file"},
		{c.ReturnToBase == "", "no returnToBase specified in config file"},
		{len(c.Endpoints) == 0, "no endpoints configured in config file"},
	}

	var errs []string
	for _, check := range checks {
		if check.bad {
			errs = append(errs, check.errMsg)
		}
	}
	if len(errs) != 0 {
		return fmt.Errorf("invalid config:\n\t-\t%s", strings.Join(errs, "\n\t-\t"))
	}
	return nil
}
