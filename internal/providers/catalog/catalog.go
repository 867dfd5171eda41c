// Package catalog holds per-provider OAuth settings, loadable from a YAML
// file with environment overrides for the redirect URLs.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is the YAML shape of one provider entry.
type ProviderConfig struct {
	ID          string   `yaml:"id"`
	Enabled     *bool    `yaml:"enabled"`
	Scopes      []string `yaml:"scopes"`
	RedirectURL string   `yaml:"redirect_url"`
}

// Settings is the resolved runtime view of a provider entry.
type Settings struct {
	ID          string
	Enabled     bool
	Scopes      []string
	RedirectURL string
}

// Catalog maps provider ids to their resolved settings.
type Catalog struct {
	byID map[string]Settings
}

// defaults cover the three built-in providers when no file entry overrides them.
var defaults = []Settings{
	{ID: "google", Enabled: true, Scopes: []string{"openid", "profile", "email"}},
	{ID: "github", Enabled: true, Scopes: []string{"read:user", "user:email"}},
	{ID: "notion", Enabled: true},
}

// Load reads the catalog file when present and applies env overrides of the
// form NOTEBASE_<ID>_REDIRECT_URL. A missing file yields the defaults.
func Load(path string) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Settings, len(defaults))}
	for _, s := range defaults {
		c.byID[s.ID] = s
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		if err == nil {
			var file fileConfig
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
			}
			for _, pc := range file.Providers {
				if !providerIDRegexp.MatchString(pc.ID) {
					return nil, fmt.Errorf("catalog: invalid provider id %q", pc.ID)
				}
				s, ok := c.byID[pc.ID]
				if !ok {
					s = Settings{ID: pc.ID, Enabled: true}
				}
				if pc.Enabled != nil {
					s.Enabled = *pc.Enabled
				}
				if len(pc.Scopes) > 0 {
					s.Scopes = pc.Scopes
				}
				if pc.RedirectURL != "" {
					s.RedirectURL = pc.RedirectURL
				}
				c.byID[pc.ID] = s
			}
		}
	}

	for id, s := range c.byID {
		env := "NOTEBASE_" + strings.ToUpper(strings.ReplaceAll(id, "-", "_")) + "_REDIRECT_URL"
		if v := os.Getenv(env); v != "" {
			s.RedirectURL = v
			c.byID[id] = s
		}
	}
	return c, nil
}

// Lookup returns the settings for a provider id.
func (c *Catalog) Lookup(id string) (Settings, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Enabled reports whether the provider exists and is enabled.
func (c *Catalog) Enabled(id string) bool {
	s, ok := c.byID[id]
	return ok && s.Enabled
}
