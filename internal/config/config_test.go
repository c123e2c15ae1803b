package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// isolate points the user config at an empty directory and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	for _, key := range []string{
		"LOCKERINDEX_LOCKER_URL", "LOCKERINDEX_LOCKER_TIMEOUT", "LOCKERINDEX_INDEX_PATH",
		"LOCKERINDEX_ENGINE", "LOCKERINDEX_BATCH_SIZE", "LOCKERINDEX_METRICS_ADDR",
		"LOCKERINDEX_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	// Setenv first so the variable is restored after the test.
	t.Setenv("LOCKERINDEX_DATASTORE_PATH", "")
	os.Unsetenv("LOCKERINDEX_DATASTORE_PATH")
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, DefaultBaseURL, cfg.Locker.BaseURL)
	assert.Equal(t, "5m", cfg.Locker.Timeout)
	require.Len(t, cfg.Locker.Services, 3)
	assert.Equal(t, ServiceConfig{Name: "places", Type: "placeplaces", Scheme: "place"}, cfg.Locker.Services[2])
	assert.Equal(t, "bleve", cfg.Index.Engine)
	assert.Equal(t, 100, cfg.Index.BatchSize)
	assert.Contains(t, cfg.Index.Path, ".lockerindex")
	assert.Equal(t, "datastore.db", filepath.Base(cfg.Datastore.Path))
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Empty(t, cfg.Server.MetricsAddr)
	assert.NoError(t, cfg.Validate())
}

func TestGetUserConfigPath_HonorsXDG(t *testing.T) {
	xdg := isolate(t)
	assert.Equal(t, filepath.Join(xdg, "lockerindex", "config.yaml"), GetUserConfigPath())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.Locker.BaseURL)
	assert.Equal(t, "bleve", cfg.Index.Engine)
}

func TestLoad_LayersUserProjectAndEnv(t *testing.T) {
	// Given: a user config, a project config and an env override
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "lockerindex", "config.yaml"), `
locker:
  base_url: http://user:9000
index:
  engine: sqlite
  batch_size: 7
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), `
index:
  batch_size: 50
server:
  log_level: debug
`)
	t.Setenv("LOCKERINDEX_LOG_LEVEL", "warn")

	// When: loading
	cfg, err := Load(dir)

	// Then: later layers win field by field
	require.NoError(t, err)
	assert.Equal(t, "http://user:9000", cfg.Locker.BaseURL)
	assert.Equal(t, "sqlite", cfg.Index.Engine)
	assert.Equal(t, 50, cfg.Index.BatchSize)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Len(t, cfg.Locker.Services, 3)
}

func TestLoad_ServicesReplacedWholesale(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), `
locker:
  services:
    - name: places
      type: placeplaces
      scheme: place
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	require.Len(t, cfg.Locker.Services, 1)
	assert.Equal(t, "places", cfg.Locker.Services[0].Name)
}

func TestLoad_EmptyDatastoreEnvDisablesJournal(t *testing.T) {
	isolate(t)
	t.Setenv("LOCKERINDEX_DATASTORE_PATH", "")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, cfg.Datastore.Path)
}

func TestLoad_ExpandsHome(t *testing.T) {
	isolate(t)
	t.Setenv("LOCKERINDEX_INDEX_PATH", "~/idx")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "idx"), cfg.Index.Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		project string
		env     map[string]string
		wantErr string
	}{
		{name: "malformed yaml", project: "index: [", wantErr: "failed to parse"},
		{name: "bad batch env", env: map[string]string{"LOCKERINDEX_BATCH_SIZE": "many"}, wantErr: "LOCKERINDEX_BATCH_SIZE"},
		{name: "bad timeout", env: map[string]string{"LOCKERINDEX_LOCKER_TIMEOUT": "soon"}, wantErr: "locker.timeout"},
		{name: "relative url", env: map[string]string{"LOCKERINDEX_LOCKER_URL": "localhost"}, wantErr: "locker.base_url"},
		{name: "bad log level", env: map[string]string{"LOCKERINDEX_LOG_LEVEL": "loud"}, wantErr: "server.log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			if tt.project != "" {
				writeFile(t, filepath.Join(dir, ProjectFileName), tt.project)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(dir)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_InvalidConfigurationCarriesCode(t *testing.T) {
	isolate(t)
	t.Setenv("LOCKERINDEX_LOG_LEVEL", "loud")

	_, err := Load(t.TempDir())

	require.Error(t, err)
	assert.Equal(t, ixerrors.ErrCodeConfigInvalid, ixerrors.GetCode(err))
}

func TestValidate_Services(t *testing.T) {
	cfg := NewConfig()
	cfg.Locker.Services = append(cfg.Locker.Services, ServiceConfig{Name: "notes", Type: "notes"})
	assert.ErrorContains(t, cfg.Validate(), "needs name, type and scheme")

	cfg = NewConfig()
	cfg.Locker.Services = append(cfg.Locker.Services, cfg.Locker.Services[0])
	assert.ErrorContains(t, cfg.Validate(), "duplicate service")

	cfg = NewConfig()
	cfg.Locker.Services = append(cfg.Locker.Services,
		ServiceConfig{Name: "twitter_friends", Type: "twitterpeople", Scheme: "twitter", Journal: "friends"})
	assert.NoError(t, cfg.Validate())

	cfg.Locker.Services[3].Journal = "enemies"
	assert.ErrorContains(t, cfg.Validate(), "journal must be one of")
}

func TestValidate_UnknownEngineAccepted(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.Engine = "lucene"
	assert.NoError(t, cfg.Validate())
}

func TestTimeoutDuration(t *testing.T) {
	d, err := LockerConfig{Timeout: "90s"}.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = LockerConfig{}.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = LockerConfig{Timeout: "-1s"}.TimeoutDuration()
	assert.Error(t, err)
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a customized config written as the project file
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Index.Engine = "sqlite"
	cfg.Server.MetricsAddr = ":9100"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))

	// When: loading it back
	loaded, err := Load(dir)

	// Then: the customizations survive
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Index.Engine)
	assert.Equal(t, ":9100", loaded.Server.MetricsAddr)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, "a", "b"), ExpandHome("~/a/b"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}
