// Package config assembles run configuration from flags, environment,
// .env files and the YAML sites file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/report"
)

// EnvPrefix prefixes every environment variable read through viper.
const EnvPrefix = "RANKWATCH"

// Viper keys. Environment variables are EnvPrefix + "_" + upper-cased key.
const (
	KeyAPIKey          = "api_key"
	KeyEndpoint        = "endpoint"
	KeyEngine          = "engine"
	KeyResultCount     = "result_count"
	KeyLanguage        = "hl"
	KeyRegion          = "gl"
	KeyGoogleDomain    = "google_domain"
	KeyDevice          = "device"
	KeyMaxAttempts     = "max_attempts"
	KeyRetryBase       = "retry_base"
	KeyRetryStep       = "retry_step"
	KeyRetryJitter     = "retry_jitter"
	KeyErrorDelay      = "error_delay"
	KeyKeywordDelay    = "keyword_delay"
	KeyTimeout         = "timeout"
	KeyExcludeOfficial = "exclude_official"
	KeyDetectSnippets  = "detect_snippets"
	KeyMatchMode       = "match"
	KeySpreadsheetID   = "spreadsheet_id"
	KeyCredentials     = "credentials_file"
	KeyMetricsPort     = "metrics_port"
	KeySites           = "sites"
	KeyTarget          = "target"
	KeyProxies         = "proxies_file"
)

// DefaultSitesFile is read when no sites file is configured. Unlike an
// explicitly configured one it may be absent.
const DefaultSitesFile = "sites.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the resolved configuration of a run.
type Config struct {
	APIKey       string
	Endpoint     string
	Engine       string
	ResultCount  int
	Language     string
	Region       string
	GoogleDomain string
	Device       string

	MaxAttempts  int
	RetryBase    time.Duration
	RetryStep    time.Duration
	RetryJitter  time.Duration
	ErrorDelay   time.Duration
	KeywordDelay time.Duration
	Timeout      time.Duration

	ExcludeOfficial bool
	DetectSnippets  bool
	MatchMode       analyzer.MatchMode

	SpreadsheetID   string
	CredentialsFile string
	MetricsPort     int
	ProxiesFile     string

	Sites
}

// SetDefaults registers default values for every scalar key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyEngine, "google")
	v.SetDefault(KeyResultCount, 100)
	v.SetDefault(KeyLanguage, "en")
	v.SetDefault(KeyRegion, "in")
	v.SetDefault(KeyGoogleDomain, "google.co.in")
	v.SetDefault(KeyDevice, "desktop")
	v.SetDefault(KeyMaxAttempts, 5)
	v.SetDefault(KeyRetryBase, 2*time.Second)
	v.SetDefault(KeyRetryStep, 2*time.Second)
	v.SetDefault(KeyRetryJitter, time.Second)
	v.SetDefault(KeyErrorDelay, 2*time.Second)
	v.SetDefault(KeyKeywordDelay, 2*time.Second)
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyExcludeOfficial, true)
	v.SetDefault(KeyDetectSnippets, false)
	v.SetDefault(KeyMatchMode, string(analyzer.MatchContains))
}

// BindEnv makes v read RANKWATCH_* environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadEnv loads .env and .env.local from the working directory, later files
// overriding earlier ones. Missing files are skipped.
func LoadEnv(logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	files := []string{".env", ".env.local"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			logger.Warn("failed to load env file", "file", file, "err", err)
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) > 0 {
		logger.Debug("loaded env files", "files", strings.Join(loaded, ", "))
	}
	return loaded
}

// FromViper resolves scalars from v and reads the sites file it names.
// A --target value overrides the sites file's target domain.
func FromViper(v *viper.Viper) (*Config, error) {
	mode, err := analyzer.ParseMatchMode(v.GetString(KeyMatchMode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg := &Config{
		APIKey:          strings.TrimSpace(v.GetString(KeyAPIKey)),
		Endpoint:        v.GetString(KeyEndpoint),
		Engine:          v.GetString(KeyEngine),
		ResultCount:     v.GetInt(KeyResultCount),
		Language:        v.GetString(KeyLanguage),
		Region:          v.GetString(KeyRegion),
		GoogleDomain:    v.GetString(KeyGoogleDomain),
		Device:          v.GetString(KeyDevice),
		MaxAttempts:     v.GetInt(KeyMaxAttempts),
		RetryBase:       v.GetDuration(KeyRetryBase),
		RetryStep:       v.GetDuration(KeyRetryStep),
		RetryJitter:     v.GetDuration(KeyRetryJitter),
		ErrorDelay:      v.GetDuration(KeyErrorDelay),
		KeywordDelay:    v.GetDuration(KeyKeywordDelay),
		Timeout:         v.GetDuration(KeyTimeout),
		ExcludeOfficial: v.GetBool(KeyExcludeOfficial),
		DetectSnippets:  v.GetBool(KeyDetectSnippets),
		MatchMode:       mode,
		SpreadsheetID:   v.GetString(KeySpreadsheetID),
		CredentialsFile: v.GetString(KeyCredentials),
		MetricsPort:     v.GetInt(KeyMetricsPort),
		ProxiesFile:     v.GetString(KeyProxies),
	}

	sites := DefaultSites()
	path, explicit := v.GetString(KeySites), true
	if path == "" {
		path, explicit = DefaultSitesFile, false
	}
	loaded, err := LoadSites(path)
	switch {
	case err == nil:
		sites = *loaded
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}
	if target := strings.TrimSpace(v.GetString(KeyTarget)); target != "" {
		sites.Target = Site{Domain: target}
		if err := sites.normalize(); err != nil {
			return nil, err
		}
	}
	cfg.Sites = sites
	return cfg, nil
}

// Validate reports the first problem that makes cfg unusable for a run.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: api key is required (set %s_API_KEY)", ErrInvalid, EnvPrefix)
	case c.Target.Domain == "":
		return fmt.Errorf("%w: target domain is required", ErrInvalid)
	case c.ResultCount <= 0:
		return fmt.Errorf("%w: result count must be positive", ErrInvalid)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalid)
	case c.RetryBase < 0 || c.RetryStep < 0 || c.RetryJitter < 0 || c.ErrorDelay < 0 || c.KeywordDelay < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalid)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	}
	// names become report column prefixes, so they must stay distinct after normalization
	seen := map[string]bool{report.ColumnName(c.Target.Name): true}
	for _, s := range c.Competitors {
		col := report.ColumnName(s.Name)
		if seen[col] {
			return fmt.Errorf("%w: site name %q collides with another site's %s_rank column", ErrInvalid, s.Name, col)
		}
		seen[col] = true
	}
	return nil
}
