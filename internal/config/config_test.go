package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  cors_origins: ["https://app.example.com"]

database:
  url: "postgres://localhost/autolink?sslmode=disable"

redis:
  url: "redis://localhost:6379/0"
  lock_ttl_seconds: 45

aws:
  region: "eu-west-1"
  bedrock_enabled: true
  revision_bucket: "autolink-revisions"
  revision_table: "autolink-revisions"

linking:
  max_links_per_content: 12
  rule_matched_confidence: 80
  link_template: '<a href="{{ href }}">{{ anchor }}</a>'

worker:
  concurrency: 8
  feeds:
    - url: "https://blog.example.com/feed"
      owner_id: "owner-1"

log:
  level: debug
  redact: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres://localhost/autolink?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 45*time.Second, cfg.Redis.LockTTL())
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.True(t, cfg.AWS.BedrockEnabled)
	assert.Equal(t, 12, cfg.Linking.MaxLinksPerContent)
	assert.Equal(t, 80, cfg.Linking.RuleMatchedConfidence)
	assert.Contains(t, cfg.Linking.LinkTemplate, "{{ anchor }}")
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	require.Len(t, cfg.Worker.Feeds, 1)
	assert.Equal(t, "owner-1", cfg.Worker.Feeds[0].OwnerID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.RedactEnabled())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Server.GenerateRatePerMinute)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL())
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, 90*24*time.Hour, cfg.AWS.RevisionRetention())
	assert.Equal(t, 20, cfg.Linking.MaxLinksPerContent)
	assert.Equal(t, 75, cfg.Linking.RuleMatchedConfidence)
	assert.Equal(t, 30*time.Second, cfg.Linking.GenerateTimeout())
	assert.Equal(t, time.Minute, cfg.Worker.PollInterval())
	assert.Equal(t, time.Hour, cfg.Worker.Lookback())
	assert.True(t, cfg.Log.RedactEnabled())
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, "database:\n  url: \"postgres://file\"\n")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("PORT", "7070")
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")
	t.Setenv("REVISION_BUCKET", "env-bucket")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.AWS.BedrockEnabled)
	assert.Equal(t, "env-bucket", cfg.AWS.RevisionBucket)
}

func TestLoadFromEnv_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
}
