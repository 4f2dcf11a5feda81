package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  driver: sqlite
  path: test.sqlite3
`))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.App.Env)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "kb_articles", cfg.Elasticsearch.Index)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, 200*time.Millisecond, cfg.Indexer.RetryBackoff)
	assert.Equal(t, 3, cfg.Reference.MaxRetries)
	assert.True(t, cfg.IsDevelopment())
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("KB_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
app:
  env: production
database:
  driver: mysql
  host: db.internal
  name: kb
  user: kb
  password: ${KB_TEST_DB_PASSWORD}
indexer:
  retry_backoff: 1s
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, time.Second, cfg.Indexer.RetryBackoff)
	assert.False(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.Database.GetDSN(), "tcp(db.internal:3306)/kb")
	assert.Contains(t, cfg.Database.GetDSN(), "parseTime=true")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`
database:
  driver: postgres
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
database:
  driver: sqlite
  path: x.db
elasticsearch:
  enabled: true
`))
	assert.Error(t, err)
}
