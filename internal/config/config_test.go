package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/adpromo/internal/config"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_DefaultsWithRequiredEnv(t *testing.T) {
	t.Setenv("CMS_BASE_URL", "https://cms.example/wp-json/wp/v2")
	t.Setenv("SOCIAL_WEBHOOK_URL", "https://social.example/hook")

	cfg, err := config.LoadFile(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, config.StoreCSV, cfg.StoreDriver)
	assert.Equal(t, config.ModeFlag, cfg.PromotionMode)
	assert.Equal(t, "23:00", cfg.PromoteAt)
	assert.Equal(t, 10*time.Second, cfg.MediaFetchTimeout)
	assert.True(t, cfg.ResolveMedia)
	assert.True(t, cfg.UniqueSlug)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CMS_BASE_URL", "https://cms.example/wp-json/wp/v2")
	t.Setenv("SOCIAL_WEBHOOK_URL", "https://social.example/hook")
	t.Setenv("PROMOTE_AT", "07:30")
	t.Setenv("PROMOTION_MODE", "remove-head")
	t.Setenv("MEDIA_FETCH_TIMEOUT", "3s")
	t.Setenv("PIPELINE_UNIQUE_SLUG", "false")

	cfg, err := config.LoadFile(missingFile(t))
	require.NoError(t, err)

	assert.Equal(t, "07:30", cfg.PromoteAt)
	assert.Equal(t, config.ModeRemoveHead, cfg.PromotionMode)
	assert.Equal(t, 3*time.Second, cfg.MediaFetchTimeout)
	assert.False(t, cfg.UniqueSlug)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "CMS_BASE_URL=https://cms.example/wp-json/wp/v2\n" +
		"SOCIAL_WEBHOOK_URL=https://social.example/hook\n" +
		"CSV_PATH=/data/queue.csv\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/queue.csv", cfg.CSVPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing cms url", map[string]string{"SOCIAL_WEBHOOK_URL": "https://s"}},
		{"missing social url", map[string]string{"CMS_BASE_URL": "https://c"}},
		{"bad promote time", map[string]string{"CMS_BASE_URL": "https://c", "SOCIAL_WEBHOOK_URL": "https://s", "PROMOTE_AT": "25:99"}},
		{"bad mode", map[string]string{"CMS_BASE_URL": "https://c", "SOCIAL_WEBHOOK_URL": "https://s", "PROMOTION_MODE": "delete"}},
		{"postgres without url", map[string]string{"CMS_BASE_URL": "https://c", "SOCIAL_WEBHOOK_URL": "https://s", "STORE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"CMS_BASE_URL": "https://c", "SOCIAL_WEBHOOK_URL": "https://s", "STORE_DRIVER": "mongo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CMS_BASE_URL", "")
			t.Setenv("SOCIAL_WEBHOOK_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadFile(missingFile(t))
			assert.Error(t, err)
		})
	}
}
