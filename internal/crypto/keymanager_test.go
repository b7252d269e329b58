package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("my-mexc-secret", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "my-mexc-secret")

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "my-mexc-secret", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptSecretRejectsEmptyInput(t *testing.T) {
	_, err := EncryptSecret("s", "")
	assert.Error(t, err)
	_, err = EncryptSecret("  ", "pw")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	got, err := LoadSecret(SecretSource{Raw: " raw-secret "})
	require.NoError(t, err)
	assert.Equal(t, "raw-secret", got)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretSource{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretSource{})
	assert.Error(t, err)
}
