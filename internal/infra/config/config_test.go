package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "unique", cfg.OutputLayout)
	assert.Equal(t, 30*time.Minute, cfg.DetectTimeout)
	assert.Equal(t, "detect_humans", cfg.DetectorBinary)
	assert.Equal(t, StorageMinIO, cfg.StorageBackend)
	assert.Equal(t, JobStorePostgres, cfg.JobStore)
	assert.Zero(t, cfg.MaxUploadBytes())
	assert.True(t, cfg.WorkerEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DETECTOR_ARGS", "--model people --threshold 2.0")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("DETECT_TIMEOUT", "90s")
	t.Setenv("MAX_UPLOAD_MB", "256")
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("JOB_STORE", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"--model", "people", "--threshold", "2.0"}, cfg.DetectorArgs)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.DetectTimeout)
	assert.Equal(t, int64(256<<20), cfg.MaxUploadBytes())
	assert.Equal(t, StorageFS, cfg.StorageBackend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"STORAGE_BACKEND": "ftp",
		"JOB_STORE":       "mongo",
		"OUTPUT_LAYOUT":   "random",
		"WORKER_COUNT":    "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
