// Package blob provides a narrow, typed wrapper over an S3-compatible
// object store: head-object for skip-detection and checkpoint reads,
// streaming put-object, and small-JSON convenience helpers for Checkpoint.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Head and GetJSON when the key does not exist.
// Callers treat this as "absent", not an error condition worth surfacing.
var ErrNotFound = errors.New("blob: object not found")

// Metadata carries the object-level metadata keys the core depends on.
// Put always sets these; Head returns whatever is stored remotely.
type Metadata map[string]string

// Well-known metadata keys, per the object store's external interface.
const (
	MetaSourceModifiedTime = "source_modified_time"
	MetaOriginalPathB64    = "original_path_encoded"
	MetaSource             = "source"
	MetaEncoding           = "encoding"

	SourceTag    = "onedrive-backup"
	EncodingB64  = "base64-utf8"
)

// HeadResult is the outcome of a Head call for an existing object.
type HeadResult struct {
	Size     int64
	Metadata Metadata
}

// Blob is the object-store interface the core depends on. Concrete
// implementations (S3, Azure Blob) must be safe for concurrent use —
// the core never synchronizes around a Blob call.
type Blob interface {
	// Head returns the object's size and metadata, or ErrNotFound if absent.
	Head(ctx context.Context, key string) (*HeadResult, error)

	// Put streams size bytes from r into key, tagging the object with
	// metadata and storageClass. storageClass may be empty to use the
	// store's default class.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata Metadata, storageClass string) error

	// PutJSON marshals value and writes it to key as a small JSON object
	// (checkpoints only — never used on the file upload path).
	PutJSON(ctx context.Context, key string, value any) error

	// GetJSON reads key and unmarshals it into value. Returns ErrNotFound
	// if the key is absent; a malformed body is a decode error, which
	// callers (Checkpoint) treat the same as "no prior cursor".
	GetJSON(ctx context.Context, key string, value any) error
}

// putJSON is the PutJSON implementation for backends in this package
// (S3Blob): marshal, then delegate to the backend's own Put. The azureblob
// backend encodes its JSON records itself.
func putJSON(ctx context.Context, b Blob, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("blob: marshaling JSON for %s: %w", key, err)
	}

	return b.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json", nil, "")
}

// getJSON is the decode step of GetJSON for backends in this package
// (S3Blob): head+fetch is backend-specific, so this only covers the decode
// step; the backend calls it after obtaining a body reader.
func getJSON(body io.Reader, value any) error {
	if err := json.NewDecoder(body).Decode(value); err != nil {
		return fmt.Errorf("blob: decoding JSON: %w", err)
	}

	return nil
}
