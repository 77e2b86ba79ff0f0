package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LoadWithPath регистрирует флаги в глобальном FlagSet, поэтому вызывается
// в тестах ровно один раз — все сценарии слоёв проверяются здесь вместе.
// В частности -config, указывающий на другой файл: раньше это приводило
// к повторной регистрации флагов и панике "flag redefined".
func TestLoadWithPathLayers(t *testing.T) {
	dir := t.TempDir()

	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(other,
		[]byte(`{"port":"9000","dbUrl":"postgres://json","logMode":"prod"}`), 0o644))

	t.Setenv("KOROB_DB_URL", "postgres://env")

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"korob", "-config", other, "-port", "7777"}

	cfg := LoadWithPath(filepath.Join(dir, "missing.json"))

	// JSON из файла, переданного через -config
	assert.Equal(t, "prod", cfg.LogMode)
	// env перекрывает JSON
	assert.Equal(t, "postgres://env", cfg.DBURL)
	// явный флаг перекрывает всё
	assert.Equal(t, "7777", cfg.Port)
	// незатронутые поля остаются дефолтными
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, "", cfg.SeedDir)
}
