package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  type: MySQL
  host: db.local
  port: 3307
  name: app_test
  user: app
  password: secret
schema: fixtures/schema.yaml
data: fixtures/data.yaml
quote:
  prefix: "` + "`" + `"
  suffix: "` + "`" + `"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dbfixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	v := viper.New()
	require.NoError(t, ReadIn(v, writeConfig(t, sampleConfig)))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, "3307", cfg.Database.Port)
	assert.Equal(t, "fixtures/schema.yaml", cfg.Schema)
	assert.Equal(t, "`", cfg.Quote.Prefix)
	assert.Equal(t, "`", cfg.Quote.Suffix)

	dbConfig := cfg.DatabaseConfig()
	assert.Equal(t, "app_test", dbConfig.Database)
	assert.Equal(t, "secret", dbConfig.Password)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DATABASE_URL", "app@tcp(db.internal:3306)/app")

	v := viper.New()
	require.NoError(t, ReadIn(v, writeConfig(t, sampleConfig)))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "app@tcp(db.internal:3306)/app", cfg.Database.URL)
}

func TestEnvironmentOnly(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_NAME", "test.db")

	v := viper.New()
	require.NoError(t, ReadIn(v, ""), "a missing default file is fine")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "test.db", cfg.DatabaseConfig().Database)
}

func TestMissingExplicitFile(t *testing.T) {
	v := viper.New()
	err := ReadIn(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"postgres", Config{Database: Database{Type: "postgres"}}, false},
		{"missing type", Config{}, true},
		{"unsupported type", Config{Database: Database{Type: "oracle"}}, true},
		{"bad placeholder", Config{Database: Database{Type: "mysql"}, Placeholder: "%"}, true},
		{"sqlite without path", Config{Database: Database{Type: "sqlite"}}, true},
		{"sqlite url", Config{Database: Database{Type: "sqlite3", URL: "file:test.db"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
