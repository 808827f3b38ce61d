// Package config loads and validates the mediacat YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/ncruces/go-strftime"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/mediacat/pkg/mediacat/internalerr"
	"github.com/cognicore/mediacat/pkg/mediacat/match"
	"github.com/cognicore/mediacat/pkg/mediacat/taxonomy"
)

// Defaults applied by Load for unset options.
const (
	DefaultPath          = "config.yml"
	DefaultMatchesPath   = "tmp/matches.json"
	DefaultCSVPath       = "./logs/media-categorizer-log.csv"
	DefaultTablePrefix   = "wp_"
	DefaultWPCLI         = "wp"
	DefaultTaxonomyMode  = "all"
	DefaultLogFormat     = "console"
	DefaultBackupPattern = "./backups/wp-db-$(date +%Y%m%d-%H%M%S).sql"
)

// Config is the whole configuration document
type Config struct {
	Settings Settings `yaml:"settings"`
	Mappings Mappings `yaml:"mappings"`
}

// Settings holds connection, path and behaviour options
type Settings struct {
	DBHost   string `yaml:"db_host"`
	DBUser   string `yaml:"db_user"`
	DBPass   string `yaml:"db_pass"`
	DBName   string `yaml:"db_name"`
	DBPort   int    `yaml:"db_port"`
	DBSocket string `yaml:"db_socket"`

	WPPath      string `yaml:"wp_path"`
	WPCLI       string `yaml:"wp_cli"`
	TablePrefix string `yaml:"table_prefix"`

	MatchesPath   string `yaml:"matches_path"`
	OutputCSVPath string `yaml:"output_csv_path"`
	LogFormat     string `yaml:"log_format"`

	ApplyTaxonomy ApplyTaxonomy `yaml:"apply_taxonomy"`
	Backup        Backup        `yaml:"backup"`
}

// ApplyTaxonomy controls which hierarchy levels are attached
type ApplyTaxonomy struct {
	Mode string `yaml:"mode"`
}

// Backup controls the pre-apply database export
type Backup struct {
	Enabled    bool   `yaml:"enabled"`
	OutputPath string `yaml:"output_path"`
}

// Mapping is one keyword rule as written in the file
type Mapping struct {
	Key   string   `yaml:"-"`
	Match string   `yaml:"match"`
	Regex bool     `yaml:"regex"`
	Terms []string `yaml:"terms"`
}

// Mappings keeps rules in the order they appear in the file.
type Mappings []Mapping

// UnmarshalYAML decodes a mapping node pair by pair to preserve order.
func (m *Mappings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: mappings must be a map of rule name to rule", node.Line)
	}
	out := make(Mappings, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var mp Mapping
		if err := valNode.Decode(&mp); err != nil {
			return fmt.Errorf("mapping %q: %w", keyNode.Value, err)
		}
		mp.Key = keyNode.Value
		out = append(out, mp)
	}
	*m = out
	return nil
}

// Load reads path and fills defaults. It does not validate stage-specific
// requirements; see ValidatePreprocess and ValidateApply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s: %w", path, internalerr.ErrInvalidConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w: %w", path, internalerr.ErrInvalidConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w: %w", path, internalerr.ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Settings
	if s.MatchesPath == "" {
		s.MatchesPath = DefaultMatchesPath
	}
	if s.OutputCSVPath == "" {
		s.OutputCSVPath = DefaultCSVPath
	}
	if s.TablePrefix == "" {
		s.TablePrefix = DefaultTablePrefix
	}
	if s.WPCLI == "" {
		s.WPCLI = DefaultWPCLI
	}
	if s.ApplyTaxonomy.Mode == "" {
		s.ApplyTaxonomy.Mode = DefaultTaxonomyMode
	}
	if s.LogFormat == "" {
		s.LogFormat = DefaultLogFormat
	}
	if s.Backup.OutputPath == "" {
		s.Backup.OutputPath = DefaultBackupPattern
	}
}

// ValidatePreprocess checks what the matching stage needs.
func (c *Config) ValidatePreprocess() error {
	if err := c.ValidateWordPress(); err != nil {
		return err
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("no mappings defined: %w", internalerr.ErrInvalidConfig)
	}
	for _, m := range c.Mappings {
		if m.Match == "" {
			return fmt.Errorf("mappings.%s.match is required: %w", m.Key, internalerr.ErrInvalidConfig)
		}
	}
	return nil
}

// ValidateWordPress checks that wp-cli has an install to run against.
func (c *Config) ValidateWordPress() error {
	if c.Settings.WPPath == "" {
		return fmt.Errorf("settings.wp_path is required: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}

// ValidateApply checks what the apply stage needs, including the mode.
// writes is true for runs that change the database; those also back up
// and flush the cache through wp-cli and so need settings.wp_path.
func (c *Config) ValidateApply(writes bool) error {
	s := c.Settings
	required := []struct{ name, value string }{
		{"db_host", s.DBHost},
		{"db_user", s.DBUser},
		{"db_pass", s.DBPass},
		{"db_name", s.DBName},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("required database setting missing: settings.%s: %w", r.name, internalerr.ErrInvalidConfig)
		}
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if writes {
		return c.ValidateWordPress()
	}
	return nil
}

// Mode parses settings.apply_taxonomy.mode
func (c *Config) Mode() (taxonomy.Mode, error) {
	return taxonomy.ParseMode(c.Settings.ApplyTaxonomy.Mode)
}

// Rules converts the mappings into matcher rules, keeping file order.
func (c *Config) Rules() []match.Rule {
	rules := make([]match.Rule, len(c.Mappings))
	for i, m := range c.Mappings {
		rules[i] = match.Rule{
			Key:     m.Key,
			Pattern: m.Match,
			Regex:   m.Regex,
			Terms:   m.Terms,
		}
	}
	return rules
}

var dateSubst = regexp.MustCompile(`\$\(date \+([^)]*)\)`)

// ExpandDate replaces each "$(date +FORMAT)" in path with now formatted by
// the strftime FORMAT, the way a shell would expand it.
func ExpandDate(path string, now time.Time) string {
	return dateSubst.ReplaceAllStringFunc(path, func(m string) string {
		format := dateSubst.FindStringSubmatch(m)[1]
		return strftime.Format(format, now)
	})
}
