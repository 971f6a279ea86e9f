package cfg

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefLogFormat             = "logfmt"
	DefLogTimeKey            = "time_iso8601"
	DefLogLevel              = "info"
	DefGithubWebhookEndpoint = "/listener/github"
	DefTrustedActor          = "dependabot[bot]"
	DefRunTimeout            = "5m"
	DefMaxConcurrentRuns     = 8
)

const (
	EnvGithubToken         = "GITHUB_TOKEN"
	EnvGithubRepository    = "GITHUB_REPOSITORY"
	EnvTrustedActor        = "BOTMERGER_TRUSTED_ACTOR"
	EnvGithubWebhookSecret = "BOTMERGER_WEBHOOK_SECRET"
)

const githubRepositoryEnvSeparator = "/"

type Config struct {
	HTTPListenAddr            string `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string `toml:"https_server_listen_addr"`
	HTTPSCertFile             string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	HTTPMetricsEndpoint       string `toml:"prometheus_metrics_endpoint"`
	GithubWebHookSecret       string `toml:"github_webhook_secret"`

	GithubAPIToken          string `toml:"github_api_token"`
	GithubAppID             int64  `toml:"github_app_id"`
	GithubAppInstallationID int64  `toml:"github_app_installation_id"`
	GithubAppPrivateKeyFile string `toml:"github_app_private_key_file"`

	LogFormat  string `toml:"log_format"`
	LogTimeKey string `toml:"log_time_key"`
	LogLevel   string `toml:"log_level"`

	// DryRun simulates approving and merging instead of changing pull
	// requests on GitHub.
	DryRun bool `toml:"dry_run"`
	// RunTimeout is the maximum duration of processing a single event.
	RunTimeout        string `toml:"run_timeout"`
	MaxConcurrentRuns int    `toml:"max_concurrent_runs"`

	Automerge Automerge `toml:"automerge"`
}

type GithubRepository struct {
	Owner          string `toml:"owner"`
	RepositoryName string `toml:"repository"`
}

func (r *GithubRepository) String() string {
	return r.Owner + githubRepositoryEnvSeparator + r.RepositoryName
}

type Automerge struct {
	Repository     GithubRepository `toml:"repository"`
	TrustedActor   string           `toml:"trusted_actor"`
	ApproveComment string           `toml:"approve_comment"`
	// Workflows restricts processing to runs of workflows with these
	// names, if it is empty runs of all workflows are processed.
	Workflows []string `toml:"workflows"`
}

// Default returns a configuration with all optional settings set to their
// default values.
func Default() *Config {
	return &Config{
		HTTPGithubWebhookEndpoint: DefGithubWebhookEndpoint,
		LogFormat:                 DefLogFormat,
		LogTimeKey:                DefLogTimeKey,
		LogLevel:                  DefLogLevel,
		RunTimeout:                DefRunTimeout,
		MaxConcurrentRuns:         DefMaxConcurrentRuns,
		Automerge: Automerge{
			TrustedActor: DefTrustedActor,
		},
	}
}

// Load reads a TOML configuration from reader.
// Settings that are not defined in the file have their default values.
func Load(reader io.Reader) (*Config, error) {
	result := Default()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, result); err != nil {
		return nil, err
	}

	return result, nil
}

// ApplyEnv overwrites settings with values from environment variables.
// lookupEnv is usually os.LookupEnv.
func (r *Config) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	if val, ok := lookupEnv(EnvGithubToken); ok && val != "" {
		r.GithubAPIToken = val
	}

	if val, ok := lookupEnv(EnvGithubWebhookSecret); ok && val != "" {
		r.GithubWebHookSecret = val
	}

	if val, ok := lookupEnv(EnvTrustedActor); ok && val != "" {
		r.Automerge.TrustedActor = val
	}

	if val, ok := lookupEnv(EnvGithubRepository); ok && val != "" {
		owner, repo, found := strings.Cut(val, githubRepositoryEnvSeparator)
		if !found || owner == "" || repo == "" || strings.Contains(repo, githubRepositoryEnvSeparator) {
			return fmt.Errorf("%s environment variable: invalid value %q, expecting <OWNER>/<REPOSITORY>", EnvGithubRepository, val)
		}

		r.Automerge.Repository = GithubRepository{Owner: owner, RepositoryName: repo}
	}

	return nil
}

// RunTimeoutDuration returns RunTimeout as time.Duration.
func (r *Config) RunTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.RunTimeout)
	if err != nil {
		return 0, fmt.Errorf("run_timeout: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("run_timeout: must be positive, is %s", d)
	}

	return d, nil
}

// UsesGithubApp returns true if GitHub App credentials are configured.
func (r *Config) UsesGithubApp() bool {
	return r.GithubAppID != 0 || r.GithubAppInstallationID != 0 || r.GithubAppPrivateKeyFile != ""
}

// Validate returns an error if a required setting is missing or a setting
// has an invalid value.
func (r *Config) Validate() error {
	var errs []error

	if r.Automerge.Repository.Owner == "" {
		errs = append(errs, errors.New("automerge.repository.owner: must be set"))
	}

	if r.Automerge.Repository.RepositoryName == "" {
		errs = append(errs, errors.New("automerge.repository.repository: must be set"))
	}

	if r.Automerge.TrustedActor == "" {
		errs = append(errs, errors.New("automerge.trusted_actor: must be set"))
	}

	if r.UsesGithubApp() {
		if r.GithubAPIToken != "" {
			errs = append(errs, errors.New("github_api_token and github_app_* settings are mutually exclusive"))
		}

		if r.GithubAppID == 0 || r.GithubAppInstallationID == 0 || r.GithubAppPrivateKeyFile == "" {
			errs = append(errs, errors.New("github_app_id, github_app_installation_id and github_app_private_key_file must be set together"))
		}
	} else if r.GithubAPIToken == "" {
		errs = append(errs, fmt.Errorf("github_api_token or %s environment variable or github_app_* settings must be set", EnvGithubToken))
	}

	if _, err := r.RunTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if r.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_runs: must be >=1, is %d", r.MaxConcurrentRuns))
	}

	return errors.Join(errs...)
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
