package cfg

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCfg = `
http_server_listen_addr = ":8085"
github_api_token = "abc"
prometheus_metrics_endpoint = "/metrics"
run_timeout = "2m"

[automerge]
trusted_actor = "renovate[bot]"
approve_comment = "auto-approved"
workflows = ["ci", "lint"]

[automerge.repository]
owner = "testman"
repository = "repo"
`

func noEnv(string) (string, bool) {
	return "", false
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, exists := m[key]
		return v, exists
	}
}

func TestLoad(t *testing.T) {
	config, err := Load(strings.NewReader(testCfg))
	require.NoError(t, err)

	assert.Equal(t, ":8085", config.HTTPListenAddr)
	assert.Equal(t, "abc", config.GithubAPIToken)
	assert.Equal(t, "/metrics", config.HTTPMetricsEndpoint)
	assert.Equal(t, "testman", config.Automerge.Repository.Owner)
	assert.Equal(t, "repo", config.Automerge.Repository.RepositoryName)
	assert.Equal(t, "renovate[bot]", config.Automerge.TrustedActor)
	assert.Equal(t, "auto-approved", config.Automerge.ApproveComment)
	assert.Equal(t, []string{"ci", "lint"}, config.Automerge.Workflows)

	d, err := config.RunTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	assert.NoError(t, config.Validate())
}

func TestLoadSetsDefaults(t *testing.T) {
	config, err := Load(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, DefGithubWebhookEndpoint, config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, DefLogFormat, config.LogFormat)
	assert.Equal(t, DefLogTimeKey, config.LogTimeKey)
	assert.Equal(t, DefLogLevel, config.LogLevel)
	assert.Equal(t, DefTrustedActor, config.Automerge.TrustedActor)
	assert.Equal(t, DefMaxConcurrentRuns, config.MaxConcurrentRuns)

	d, err := config.RunTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
}

func TestLoadInvalidToml(t *testing.T) {
	_, err := Load(strings.NewReader("automerge = ["))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	config := Default()

	err := config.ApplyEnv(envMap(map[string]string{
		EnvGithubToken:         "tok",
		EnvGithubRepository:    "simplesurance/botmerger",
		EnvTrustedActor:        "renovate[bot]",
		EnvGithubWebhookSecret: "sec",
	}))
	require.NoError(t, err)

	assert.Equal(t, "tok", config.GithubAPIToken)
	assert.Equal(t, "sec", config.GithubWebHookSecret)
	assert.Equal(t, "renovate[bot]", config.Automerge.TrustedActor)
	assert.Equal(t, "simplesurance", config.Automerge.Repository.Owner)
	assert.Equal(t, "botmerger", config.Automerge.Repository.RepositoryName)
	assert.Equal(t, "simplesurance/botmerger", config.Automerge.Repository.String())
}

func TestApplyEnvKeepsCfgValuesWhenUnset(t *testing.T) {
	config, err := Load(strings.NewReader(testCfg))
	require.NoError(t, err)

	require.NoError(t, config.ApplyEnv(noEnv))
	require.NoError(t, config.ApplyEnv(envMap(map[string]string{EnvGithubToken: ""})))

	assert.Equal(t, "abc", config.GithubAPIToken)
	assert.Equal(t, "renovate[bot]", config.Automerge.TrustedActor)
	assert.Equal(t, "testman/repo", config.Automerge.Repository.String())
}

func TestApplyEnvInvalidRepository(t *testing.T) {
	for _, val := range []string{"botmerger", "/botmerger", "simplesurance/", "a/b/c"} {
		t.Run(val, func(t *testing.T) {
			config := Default()
			err := config.ApplyEnv(envMap(map[string]string{EnvGithubRepository: val}))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.GithubAPIToken = "tok"
		c.Automerge.Repository = GithubRepository{Owner: "testman", RepositoryName: "repo"}
		return c
	}

	require.NoError(t, valid().Validate())

	tcs := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing owner", func(c *Config) { c.Automerge.Repository.Owner = "" }},
		{"missing repository", func(c *Config) { c.Automerge.Repository.RepositoryName = "" }},
		{"empty trusted actor", func(c *Config) { c.Automerge.TrustedActor = "" }},
		{"no credentials", func(c *Config) { c.GithubAPIToken = "" }},
		{"token and app credentials", func(c *Config) {
			c.GithubAppID = 1
			c.GithubAppInstallationID = 2
			c.GithubAppPrivateKeyFile = "/key.pem"
		}},
		{"incomplete app credentials", func(c *Config) {
			c.GithubAPIToken = ""
			c.GithubAppID = 1
		}},
		{"invalid run timeout", func(c *Config) { c.RunTimeout = "soon" }},
		{"negative run timeout", func(c *Config) { c.RunTimeout = "-1s" }},
		{"no workers", func(c *Config) { c.MaxConcurrentRuns = 0 }},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidateGithubAppCredentials(t *testing.T) {
	c := Default()
	c.Automerge.Repository = GithubRepository{Owner: "testman", RepositoryName: "repo"}
	c.GithubAppID = 1
	c.GithubAppInstallationID = 2
	c.GithubAppPrivateKeyFile = "/key.pem"

	assert.True(t, c.UsesGithubApp())
	assert.NoError(t, c.Validate())
}

func TestMarshal(t *testing.T) {
	config, err := Load(strings.NewReader(testCfg))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, config.Marshal(&buf))

	assert.Contains(t, buf.String(), `trusted_actor = "renovate[bot]"`)
	assert.Contains(t, buf.String(), `owner = "testman"`)
}
