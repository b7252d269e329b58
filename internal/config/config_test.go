package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/crypto"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.MEXC.APIKey = "key"
	cfg.MEXC.SecretKey = "secret"
	cfg.Sniper.Owners = []string{"u1"}
	return cfg
}

func TestDefaultsWithCredentialsValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://api.mexc.com", cfg.MEXC.BaseURL)
	assert.Equal(t, "mexc_trading_data", cfg.Dynamo.Table)
	assert.Equal(t, "/app/mexc-sniper-bot", cfg.SSM.Prefix)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateAggregates(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Store.Backend = "sqlite"
	cfg.Sniper.Quantity = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown mode", "api_key is required", "unknown backend", "quantity must be > 0"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateSSMReplacesCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.SSM.Enabled = true
	cfg.Sniper.Owners = []string{"u1"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "scanner"

[sniper]
owners = ["alice"]
scan_interval = "2s"

[dynamo]
table = "from_file"
`), 0o600))

	t.Setenv("MEXCBOT_DYNAMO_TABLE", "from_env")
	t.Setenv("MEXC_API_KEY", "alias-key")
	t.Setenv("MEXCBOT_SNIPER_OWNERS", "alice, bob ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scanner", cfg.Mode)
	assert.Equal(t, 2*time.Second, cfg.Sniper.ScanInterval.Duration)
	assert.Equal(t, "from_env", cfg.Dynamo.Table)
	assert.Equal(t, "alias-key", cfg.MEXC.APIKey)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Sniper.Owners)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Mode)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "admin"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.MEXC.APIKey)
	assert.Equal(t, "***", out.MEXC.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")
	assert.Equal(t, "key", cfg.MEXC.APIKey, "original untouched")

	out.Sniper.Owners[0] = "mallory"
	assert.Equal(t, "u1", cfg.Sniper.Owners[0])
}

type fakeSSM map[string]string

func (f fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	v, ok := f[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

func TestResolveCredentialsFromSSM(t *testing.T) {
	cfg := Defaults()
	cfg.SSM.Enabled = true
	cfg.SSM.Prefix = "/app/mexc-sniper-bot/"
	api := fakeSSM{
		"/app/mexc-sniper-bot/mexc/api-key":    "ssm-key",
		"/app/mexc-sniper-bot/mexc/secret-key": "ssm-secret",
	}

	creds, err := ResolveCredentials(context.Background(), &cfg, api)
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "ssm-key", SecretKey: "ssm-secret"}, creds)

	cfg.MEXC.APIKey = "local-key"
	creds, err = ResolveCredentials(context.Background(), &cfg, api)
	require.NoError(t, err)
	assert.Equal(t, "local-key", creds.APIKey, "explicit config wins")

	_, err = ResolveCredentials(context.Background(), &cfg, fakeSSM{})
	assert.ErrorContains(t, err, "ssm get")
}

func TestResolveCredentialsFromKeyFile(t *testing.T) {
	blob, err := crypto.EncryptSecret("sealed-secret", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	cfg := Defaults()
	cfg.MEXC.APIKey = "key"
	cfg.MEXC.EncryptedSecretPath = path
	cfg.MEXC.KeyPassword = "pw"

	creds, err := ResolveCredentials(context.Background(), &cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "sealed-secret", creds.SecretKey)

	cfg.MEXC.KeyPassword = "wrong"
	_, err = ResolveCredentials(context.Background(), &cfg, nil)
	assert.Error(t, err)
}
