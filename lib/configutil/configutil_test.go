package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Portal struct {
		BaseUrl string `json:"base_url"`
		Charset string `json:"charset"`
	} `json:"portal"`
	Auth struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RetryLimit int    `json:"retry_limit"`
	} `json:"auth"`
}

func write(t *testing.T, path, contents string) {
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{
		// shared defaults
		portal: { base_url: "https://sipac.ufrn.br/sipac/", charset: "iso-8859-1" },
		auth: { username: "servidor", retry_limit: 3, },
	}`)
	write(t, filepath.Join(dir, "config.local.json5"), `{
		auth: { password: "segredo", retry_limit: 5 },
	}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://sipac.ufrn.br/sipac/", cfg.Portal.BaseUrl)
	require.Equal(t, "iso-8859-1", cfg.Portal.Charset)
	require.Equal(t, "servidor", cfg.Auth.Username)
	require.Equal(t, "segredo", cfg.Auth.Password)
	require.Equal(t, 5, cfg.Auth.RetryLimit)
}

func TestReadConfigExpandsEnv(t *testing.T) {
	t.Setenv("SIPAC_TEST_USERNAME", "servidor")
	t.Setenv("SIPAC_TEST_PASSWORD", `s3nh@`)

	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{
		portal: { base_url: "${SIPAC_TEST_BASE_URL:-https://sipac.ufrn.br/sipac/}" },
		auth: { username: "${SIPAC_TEST_USERNAME}", password: "${SIPAC_TEST_PASSWORD}" },
	}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://sipac.ufrn.br/sipac/", cfg.Portal.BaseUrl)
	require.Equal(t, "servidor", cfg.Auth.Username)
	require.Equal(t, "s3nh@", cfg.Auth.Password)
}

func TestReadConfigNotFound(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{ auth: `)

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.Error(t, err)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	write(t, filepath.Join(root, "sipac.json5"), `{ auth: { username: "servidor" } }`)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := ReadRecursively[testConfig]("sipac.json5")
	require.NoError(t, err)
	require.Equal(t, "servidor", cfg.Auth.Username)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SIPAC_TEST_SET", "valor")
	os.Unsetenv("SIPAC_TEST_UNSET")

	require.Equal(t, `"valor"`, string(ExpandEnv([]byte(`"${SIPAC_TEST_SET}"`))))
	require.Equal(t, `""`, string(ExpandEnv([]byte(`"${SIPAC_TEST_UNSET}"`))))
	require.Equal(t, `"padrao"`, string(ExpandEnv([]byte(`"${SIPAC_TEST_UNSET:-padrao}"`))))
	require.Equal(t, `"$HOME"`, string(ExpandEnv([]byte(`"$HOME"`))))
}
