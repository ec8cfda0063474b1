package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
	"github.com/tonimelisma/onedrive-backup/internal/blob/azureblob"
	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/cryptoname"
)

// buildDestination constructs the Blob backend and, when configured, the
// filename cipher for a single [[destinations]] entry. Credentials are
// read from the environment variables the config names — never from the
// config file itself. chunkSize is the parsed global chunk_size option,
// used as the S3 multipart part size.
func buildDestination(destCfg config.DestinationConfig, chunkSize int64, logger *slog.Logger) (blob.Blob, *cryptoname.Cipher, error) {
	var (
		b   blob.Blob
		err error
	)

	switch destCfg.Kind {
	case "s3":
		b, err = buildS3Destination(destCfg, chunkSize, logger)
	case "azure_blob":
		b, err = buildAzureDestination(destCfg)
	default:
		return nil, nil, fmt.Errorf("destination %q: unsupported kind %q", destCfg.Name, destCfg.Kind)
	}

	if err != nil {
		return nil, nil, err
	}

	cipher, err := buildNameCipher(destCfg)
	if err != nil {
		return nil, nil, err
	}

	return b, cipher, nil
}

func buildS3Destination(destCfg config.DestinationConfig, chunkSize int64, logger *slog.Logger) (blob.Blob, error) {
	accessKey := os.Getenv(destCfg.AccessKeyEnv)
	if accessKey == "" {
		return nil, fmt.Errorf("destination %q: environment variable %q (access_key_env) is not set", destCfg.Name, destCfg.AccessKeyEnv)
	}

	secretKey := os.Getenv(destCfg.SecretKeyEnv)
	if secretKey == "" {
		return nil, fmt.Errorf("destination %q: environment variable %q (secret_key_env) is not set", destCfg.Name, destCfg.SecretKeyEnv)
	}

	return blob.NewS3Blob(blob.S3Config{
		Endpoint:  destCfg.Endpoint,
		Bucket:    destCfg.Bucket,
		Prefix:    destCfg.Prefix,
		Region:    destCfg.Region,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    destCfg.UseSSL,
		ChunkSize: chunkSize,
	}, logger)
}

func buildAzureDestination(destCfg config.DestinationConfig) (blob.Blob, error) {
	accountKey := os.Getenv(destCfg.AccountKeyEnv)
	if accountKey == "" {
		return nil, fmt.Errorf("destination %q: environment variable %q (account_key_env) is not set", destCfg.Name, destCfg.AccountKeyEnv)
	}

	// Control-plane calls (Head, GetJSON) get the same bounded client every
	// other control call uses; the streaming Put path gets an unbounded one,
	// matching transferSourceClient's reasoning on the source side — an
	// upload's total duration scales with the file being sent, not a fixed
	// budget, so it is bounded only by context cancellation instead of
	// httpClientTimeout.
	return azureblob.New(azureblob.Config{
		Account:    destCfg.Account,
		AccountKey: accountKey,
		Container:  destCfg.Container,
		Prefix:     destCfg.Prefix,
	}, &http.Client{Timeout: httpClientTimeout}, &http.Client{Timeout: 0})
}

// buildNameCipher returns nil, nil when encrypt_filenames is disabled.
func buildNameCipher(destCfg config.DestinationConfig) (*cryptoname.Cipher, error) {
	if !destCfg.EncryptFilenames {
		return nil, nil
	}

	encoded := os.Getenv(destCfg.EncryptionKeyEnv)
	if encoded == "" {
		return nil, fmt.Errorf("destination %q: environment variable %q (encryption_key_env) is not set", destCfg.Name, destCfg.EncryptionKeyEnv)
	}

	key, err := cryptoname.DecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("destination %q: decoding encryption key: %w", destCfg.Name, err)
	}

	cipher, err := cryptoname.New(key)
	if err != nil {
		return nil, fmt.Errorf("destination %q: constructing name cipher: %w", destCfg.Name, err)
	}

	return cipher, nil
}
