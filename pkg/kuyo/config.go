// config.go merges engine configuration from defaults, environment variables and files.

package kuyo

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultEndpoint is the collector URL used when Config.Endpoint is empty.
const DefaultEndpoint = "http://localhost:4009/api/events"

// Config holds engine-wide settings.
type Config struct {
	// APIKey is the delivery credential sent with every event.
	APIKey string `mapstructure:"api_key"`

	// Environment labels the session. Defaults to production.
	Environment Environment `mapstructure:"environment"`

	// Debug enables verbose engine and adapter logging.
	Debug bool `mapstructure:"debug"`

	// Endpoint is the collector URL for the default HTTP transport.
	Endpoint string `mapstructure:"endpoint"`

	// Hosting describes the hosting-provider deployment.
	Hosting HostingConfig `mapstructure:"hosting"`
}

// HostingConfig carries hosting-provider deployment metadata.
// Missing values are empty strings.
type HostingConfig struct {
	Env           string `mapstructure:"env" json:"env,omitempty"`
	PublicURL     string `mapstructure:"public_url" json:"publicUrl,omitempty"`
	ProductionURL string `mapstructure:"production_url" json:"productionUrl,omitempty"`
	GitProvider   string `mapstructure:"git_provider" json:"gitProvider,omitempty"`
	CommitRef     string `mapstructure:"commit_ref" json:"commitRef,omitempty"`
	CommitSHA     string `mapstructure:"commit_sha" json:"commitSha,omitempty"`
	CommitMessage string `mapstructure:"commit_message" json:"commitMessage,omitempty"`
	CommitAuthor  string `mapstructure:"commit_author" json:"commitAuthor,omitempty"`
	Region        string `mapstructure:"region" json:"region,omitempty"`
	DeploymentID  string `mapstructure:"deployment_id" json:"deploymentId,omitempty"`
}

// ConfigPatch is a partial configuration for Engine.UpdateConfig.
// Nil fields are left unchanged.
type ConfigPatch struct {
	APIKey      *string
	Environment *Environment
	Debug       *bool
	Endpoint    *string
	Hosting     *HostingConfig
}

// hostingEnvVars lists the environment variables consulted per hosting field,
// in priority order.
var hostingEnvVars = map[string][]string{
	"env":            {"VERCEL_ENV", "NEXT_PUBLIC_VERCEL_ENV"},
	"public_url":     {"VERCEL_URL", "NEXT_PUBLIC_VERCEL_URL"},
	"production_url": {"VERCEL_PROJECT_PRODUCTION_URL", "NEXT_PUBLIC_VERCEL_PROJECT_PRODUCTION_URL"},
	"git_provider":   {"VERCEL_GIT_PROVIDER", "NEXT_PUBLIC_VERCEL_GIT_PROVIDER"},
	"commit_ref":     {"VERCEL_GIT_COMMIT_REF", "NEXT_PUBLIC_VERCEL_GIT_COMMIT_REF"},
	"commit_sha":     {"VERCEL_GIT_COMMIT_SHA", "NEXT_PUBLIC_VERCEL_GIT_COMMIT_SHA"},
	"commit_message": {"VERCEL_GIT_COMMIT_MESSAGE", "NEXT_PUBLIC_VERCEL_GIT_COMMIT_MESSAGE"},
	"commit_author":  {"VERCEL_GIT_COMMIT_AUTHOR_NAME", "NEXT_PUBLIC_VERCEL_GIT_COMMIT_AUTHOR_NAME"},
	"region":         {"VERCEL_REGION", "NEXT_PUBLIC_VERCEL_REGION"},
	"deployment_id":  {"VERCEL_DEPLOYMENT_ID", "NEXT_PUBLIC_VERCEL_DEPLOYMENT_ID"},
}

// HostingFromEnv reads hosting metadata from the environment.
// It never fails; absent variables yield empty fields.
func HostingFromEnv() HostingConfig {
	v := viper.New()
	for key, envs := range hostingEnvVars {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	v.SetDefault("env", string(EnvironmentDevelopment))

	return HostingConfig{
		Env:           v.GetString("env"),
		PublicURL:     v.GetString("public_url"),
		ProductionURL: v.GetString("production_url"),
		GitProvider:   v.GetString("git_provider"),
		CommitRef:     v.GetString("commit_ref"),
		CommitSHA:     v.GetString("commit_sha"),
		CommitMessage: v.GetString("commit_message"),
		CommitAuthor:  v.GetString("commit_author"),
		Region:        v.GetString("region"),
		DeploymentID:  v.GetString("deployment_id"),
	}
}

// DefaultConfig returns the defaults that supplied configuration is merged over.
func DefaultConfig() Config {
	return Config{
		Environment: EnvironmentProduction,
		Endpoint:    DefaultEndpoint,
		Hosting:     HostingFromEnv(),
	}
}

// mergeConfig overlays the non-zero fields of cfg onto the defaults.
func mergeConfig(cfg Config) Config {
	merged := DefaultConfig()
	if cfg.APIKey != "" {
		merged.APIKey = cfg.APIKey
	}
	if cfg.Environment != "" {
		merged.Environment = ParseEnvironment(string(cfg.Environment))
	}
	merged.Debug = cfg.Debug
	if cfg.Endpoint != "" {
		merged.Endpoint = cfg.Endpoint
	}
	merged.Hosting = overlayHosting(merged.Hosting, cfg.Hosting)
	return merged
}

func overlayHosting(base, over HostingConfig) HostingConfig {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	return HostingConfig{
		Env:           pick(base.Env, over.Env),
		PublicURL:     pick(base.PublicURL, over.PublicURL),
		ProductionURL: pick(base.ProductionURL, over.ProductionURL),
		GitProvider:   pick(base.GitProvider, over.GitProvider),
		CommitRef:     pick(base.CommitRef, over.CommitRef),
		CommitSHA:     pick(base.CommitSHA, over.CommitSHA),
		CommitMessage: pick(base.CommitMessage, over.CommitMessage),
		CommitAuthor:  pick(base.CommitAuthor, over.CommitAuthor),
		Region:        pick(base.Region, over.Region),
		DeploymentID:  pick(base.DeploymentID, over.DeploymentID),
	}
}

// apply merges p into cfg and reports whether the credential changed.
func (p ConfigPatch) apply(cfg *Config) (credentialChanged bool) {
	if p.APIKey != nil {
		credentialChanged = *p.APIKey != cfg.APIKey
		cfg.APIKey = *p.APIKey
	}
	if p.Environment != nil {
		cfg.Environment = ParseEnvironment(string(*p.Environment))
	}
	if p.Debug != nil {
		cfg.Debug = *p.Debug
	}
	if p.Endpoint != nil {
		cfg.Endpoint = *p.Endpoint
	}
	if p.Hosting != nil {
		cfg.Hosting = *p.Hosting
	}
	return credentialChanged
}

// newConfigViper prepares a viper instance for a config file with KUYO_
// environment overrides.
func newConfigViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KUYO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register the keys so AutomaticEnv applies during Unmarshal.
	v.SetDefault("api_key", "")
	v.SetDefault("environment", "")
	v.SetDefault("debug", false)
	v.SetDefault("endpoint", "")
	for key := range hostingEnvVars {
		v.SetDefault("hosting."+key, "")
	}
	return v
}

// LoadConfig reads configuration from a YAML, JSON or TOML file. Values
// can be overridden with KUYO_ environment variables (KUYO_API_KEY,
// KUYO_HOSTING_REGION, ...). The result is not yet merged with defaults.
func LoadConfig(path string) (Config, error) {
	v := newConfigViper(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// WatchConfig applies changes of the config file at path to e while the
// process runs. Rotating api_key in the file rebuilds e's transport.
func WatchConfig(e *Engine, path string) error {
	v := newConfigViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			e.logf(true, "Failed to reload config %s: %v", ev.Name, err)
			return
		}
		e.UpdateConfig(patchFromFile(cfg))
		e.logf(false, "Config reloaded from %s", ev.Name)
	})
	v.WatchConfig()
	return nil
}

// patchFromFile converts a reloaded file config into a patch. Empty strings
// leave the current value in place.
func patchFromFile(cfg Config) ConfigPatch {
	p := ConfigPatch{Debug: &cfg.Debug}
	if cfg.APIKey != "" {
		p.APIKey = &cfg.APIKey
	}
	if cfg.Environment != "" {
		p.Environment = &cfg.Environment
	}
	if cfg.Endpoint != "" {
		p.Endpoint = &cfg.Endpoint
	}
	return p
}
