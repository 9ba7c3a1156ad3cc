package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "reestrsi.db", cfg.DBDatabase)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, "uploads", cfg.UploadFolder)
	assert.Equal(t, []string{"pdf", "jpg", "jpeg", "png"}, cfg.AllowedExtensions)
	assert.True(t, cfg.SeedData)
	assert.True(t, cfg.IsFileDB())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DB_TYPE", "Postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "reestr")
	t.Setenv("ALLOWED_EXTENSIONS", ".PDF, docx")
	t.Setenv("PAGE_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBType)
	assert.False(t, cfg.IsFileDB())
	assert.Equal(t, []string{"pdf", "docx"}, cfg.AllowedExtensions)
	assert.Equal(t, 50, cfg.PageSize)
}

func TestLoadRequired(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	_, err := Load()
	require.EqualError(t, err, "SECRET_KEY is required")

	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_USER", "")
	_, err = Load()
	require.EqualError(t, err, "DB_USER is required")

	t.Setenv("DB_TYPE", "oracle")
	_, err = Load()
	require.EqualError(t, err, "unsupported DB_TYPE: oracle")
}
