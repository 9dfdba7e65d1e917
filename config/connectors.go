package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/tip/errs"
)

// Identity names the operator contact declared to upstream sources.
type Identity struct {
	Name  string `yaml:"name" validate:"required"`
	Email string `yaml:"email" validate:"required,email"`
}

// UserAgent renders the "<name> <email> (<component>)" header value polite
// upstream sources require.
func (i Identity) UserAgent(component string) string {
	return fmt.Sprintf("%s %s (%s)", i.Name, i.Email, component)
}

// Validate checks the identity on its own, for commands that talk to an
// upstream without a watchlist.
func (i Identity) Validate() error {
	if err := settingsValidator.Struct(i); err != nil {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("operator identity required"), errs.WithCause(err))
	}
	return nil
}

// EdgarConnector configures the regulatory filing watchlist.
type EdgarConnector struct {
	Identity Identity `yaml:"identity"`
	// CIKs lists watched registrants; bare numeric strings are zero-padded
	// by the adapter.
	CIKs []string `yaml:"ciks" validate:"min=1,dive,required"`
	// Forms overrides the adapter's default form allowlist when non-empty.
	Forms  []string `yaml:"forms"`
	MaxRPS float64  `yaml:"maxRps" validate:"gt=0"`
}

// RedditConnector configures the forum watchlist.
type RedditConnector struct {
	Identity   Identity `yaml:"identity"`
	Subreddits []string `yaml:"subreddits" validate:"min=1,dive,required"`
	MaxRPS     float64  `yaml:"maxRps" validate:"gt=0"`
}

// Connectors is the watchlist configuration tree loaded from YAML.
type Connectors struct {
	Edgar  EdgarConnector  `yaml:"edgar"`
	Reddit RedditConnector `yaml:"reddit"`
}

// DefaultConnectors returns the connector defaults applied before the YAML
// file is merged. Watchlists stay empty until operators declare them.
func DefaultConnectors() Connectors {
	return Connectors{
		Edgar:  EdgarConnector{MaxRPS: 2},
		Reddit: RedditConnector{Subreddits: []string{"wallstreetbets"}, MaxRPS: 1},
	}
}

// LoadConnectors reads the connectors file at path, merging it over the
// defaults. A missing file is not an error; the second return value reports
// whether the file was read.
func LoadConnectors(path string) (Connectors, bool, error) {
	cfg := DefaultConnectors()
	path = strings.TrimSpace(path)
	if path == "" {
		path = Default().ConnectorsFile
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operators control configuration paths.
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return Connectors{}, false, fmt.Errorf("open connectors config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Connectors{}, false, fmt.Errorf("unmarshal connectors config: %w", err)
	}
	if cfg.Edgar.MaxRPS <= 0 {
		cfg.Edgar.MaxRPS = 2
	}
	if cfg.Reddit.MaxRPS <= 0 {
		cfg.Reddit.MaxRPS = 1
	}
	return cfg, true, nil
}

// Validate checks the filing watchlist before the edgar connector starts.
func (c EdgarConnector) Validate() error {
	if err := settingsValidator.Struct(c); err != nil {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("invalid edgar connector config"), errs.WithCause(err))
	}
	return nil
}

// Validate checks the forum watchlist before the reddit connector starts.
func (c RedditConnector) Validate() error {
	if err := settingsValidator.Struct(c); err != nil {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("invalid reddit connector config"), errs.WithCause(err))
	}
	return nil
}
