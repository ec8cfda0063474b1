package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/cryptoname"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nilWriter{}, nil))
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestBuildDestination_UnsupportedKind(t *testing.T) {
	_, _, err := buildDestination(config.DestinationConfig{Name: "d", Kind: "ftp"}, 0, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported kind")
}

func TestBuildDestination_S3MissingAccessKeyEnv(t *testing.T) {
	_, _, err := buildDestination(config.DestinationConfig{
		Name:         "d",
		Kind:         "s3",
		Bucket:       "backup-bucket",
		AccessKeyEnv: "DOES_NOT_EXIST_ACCESS_KEY_ENV",
		SecretKeyEnv: "DOES_NOT_EXIST_SECRET_KEY_ENV",
	}, 0, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOES_NOT_EXIST_ACCESS_KEY_ENV")
}

func TestBuildDestination_AzureMissingAccountKeyEnv(t *testing.T) {
	_, _, err := buildDestination(config.DestinationConfig{
		Name:          "d",
		Kind:          "azure_blob",
		Account:       "acct",
		Container:     "backups",
		AccountKeyEnv: "DOES_NOT_EXIST_ACCOUNT_KEY_ENV",
	}, 0, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOES_NOT_EXIST_ACCOUNT_KEY_ENV")
}

func TestBuildNameCipher_Disabled(t *testing.T) {
	cipher, err := buildNameCipher(config.DestinationConfig{EncryptFilenames: false})
	require.NoError(t, err)
	assert.Nil(t, cipher)
}

func TestBuildNameCipher_MissingEnv(t *testing.T) {
	_, err := buildNameCipher(config.DestinationConfig{
		EncryptFilenames: true,
		EncryptionKeyEnv: "DOES_NOT_EXIST_ENCRYPTION_KEY_ENV",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOES_NOT_EXIST_ENCRYPTION_KEY_ENV")
}

func TestBuildNameCipher_ValidKey(t *testing.T) {
	key, err := cryptoname.GenerateKey()
	require.NoError(t, err)

	t.Setenv("TEST_CRYPTONAME_KEY", key)

	cipher, err := buildNameCipher(config.DestinationConfig{
		EncryptFilenames: true,
		EncryptionKeyEnv: "TEST_CRYPTONAME_KEY",
	})
	require.NoError(t, err)
	require.NotNil(t, cipher)

	encrypted, err := cipher.Encrypt("a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "a.txt", encrypted)
}
