// Package azureblob implements the blob.Blob interface against Azure Blob
// Storage's REST API, signed with the Shared Key scheme. No Azure SDK for Go
// appears anywhere in the retrieved reference pack, so this talks to the
// documented wire protocol directly over net/http rather than pulling in an
// SDK this module has no other use for.
package azureblob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/onedrive-backup/internal/blob"
)

const apiVersion = "2021-08-06"

// Config configures a Blob backed by an Azure Storage account container.
type Config struct {
	Account   string
	AccountKey string
	Container string
	Prefix    string
}

// Blob is the concrete blob.Blob implementation for Azure Blob Storage.
type Blob struct {
	account      string
	key          []byte
	container    string
	prefix       string
	endpoint     string
	client       *http.Client // Head/GetJSON — small control-plane requests
	uploadClient *http.Client // Put — the streaming upload path
}

// New constructs a Blob against the given storage account and container.
// httpClient bounds the small control-plane calls (Head, GetJSON); upload
// calls (Put, including PutJSON's checkpoint writes) go through
// uploadClient instead, which should carry no fixed timeout — mirroring
// this module's source-side transferSourceClient — since a streaming
// upload's total duration scales with file size, not a fixed budget.
// Either client defaults to http.DefaultClient when nil.
func New(cfg Config, httpClient *http.Client, uploadClient *http.Client) (*Blob, error) {
	key, err := base64.StdEncoding.DecodeString(cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azureblob: decoding account key: %w", err)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if uploadClient == nil {
		uploadClient = http.DefaultClient
	}

	return &Blob{
		account:      cfg.Account,
		key:          key,
		container:    cfg.Container,
		prefix:       cfg.Prefix,
		endpoint:     fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account),
		client:       httpClient,
		uploadClient: uploadClient,
	}, nil
}

func (b *Blob) blobURL(key string) string {
	path := b.prefix + key
	return fmt.Sprintf("%s/%s/%s", b.endpoint, b.container, url.PathEscape(path))
}

// sign computes the Shared Key Authorization header value for req, per the
// Azure Storage canonicalized-request signing scheme (HMAC-SHA256 over a
// canonicalized string built from the verb, headers, and resource path).
func (b *Blob) sign(req *http.Request, contentLength int64) (string, error) {
	canonicalHeaders := canonicalizeHeaders(req.Header)
	canonicalResource := b.canonicalResource(req.URL)

	contentLengthStr := ""
	if contentLength > 0 {
		contentLengthStr = strconv.FormatInt(contentLength, 10)
	}

	stringToSign := strings.Join([]string{
		req.Method,
		req.Header.Get("Content-Encoding"),
		req.Header.Get("Content-Language"),
		contentLengthStr,
		req.Header.Get("Content-MD5"),
		req.Header.Get("Content-Type"),
		"", // Date — we use x-ms-date instead
		req.Header.Get("If-Modified-Since"),
		req.Header.Get("If-Match"),
		req.Header.Get("If-None-Match"),
		req.Header.Get("If-Unmodified-Since"),
		req.Header.Get("Range"),
		canonicalHeaders,
		canonicalResource,
	}, "\n")

	mac := hmac.New(sha256.New, b.key)
	if _, err := mac.Write([]byte(stringToSign)); err != nil {
		return "", fmt.Errorf("azureblob: signing request: %w", err)
	}

	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedKey %s:%s", b.account, signature), nil
}

// canonicalizeHeaders builds the CanonicalizedHeaders portion of the
// Shared Key string-to-sign: every x-ms-* header, lowercased, sorted, and
// joined as "name:value\n".
func canonicalizeHeaders(h http.Header) string {
	var names []string
	for name := range h {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-ms-") {
			names = append(names, lower)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(h.Get(name))
	}

	return b.String()
}

// canonicalResource builds the CanonicalizedResource portion: the account
// name, the URL path, and sorted query parameters.
func (b *Blob) canonicalResource(u *url.URL) string {
	var res strings.Builder
	res.WriteString("/")
	res.WriteString(b.account)
	res.WriteString(u.Path)

	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		values := query[k]
		sort.Strings(values)
		res.WriteString("\n")
		res.WriteString(strings.ToLower(k))
		res.WriteString(":")
		res.WriteString(strings.Join(values, ","))
	}

	return res.String()
}

func (b *Blob) newRequest(ctx context.Context, method, rawURL string, body io.Reader, contentLength int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("azureblob: building request: %w", err)
	}

	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("x-ms-version", apiVersion)

	if contentLength > 0 {
		req.ContentLength = contentLength
	}

	auth, err := b.sign(req, contentLength)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)

	return req, nil
}

// Head implements blob.Blob via a HEAD request against the blob URL.
func (b *Blob) Head(ctx context.Context, key string) (*blob.HeadResult, error) {
	req, err := b.newRequest(ctx, http.MethodHead, b.blobURL(key), nil, 0)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azureblob: head %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, blob.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azureblob: head %s: unexpected status %d", key, resp.StatusCode)
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)

	md := make(blob.Metadata)
	for name := range resp.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-ms-meta-") {
			md[strings.TrimPrefix(lower, "x-ms-meta-")] = resp.Header.Get(name)
		}
	}

	return &blob.HeadResult{Size: size, Metadata: md}, nil
}

// Put implements blob.Blob via a PUT BlockBlob request, streaming r directly
// into the request body.
func (b *Blob) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata blob.Metadata, storageClass string) error {
	req, err := b.newRequest(ctx, http.MethodPut, b.blobURL(key), r, size)
	if err != nil {
		return err
	}

	req.Header.Set("x-ms-blob-type", "BlockBlob")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if storageClass != "" {
		req.Header.Set("x-ms-access-tier", storageClass)
	}
	for k, v := range metadata {
		req.Header.Set("x-ms-meta-"+k, v)
	}

	// Headers set after newRequest built the signature are not covered by
	// it — Shared Key only requires x-ms-* headers present at signing time
	// to be included, so blob-type/tier/meta headers (all x-ms-*) must be
	// set before signing. Re-sign now that they're present.
	auth, err := b.sign(req, size)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)

	resp, err := b.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("azureblob: put %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("azureblob: put %s: unexpected status %d", key, resp.StatusCode)
	}

	return nil
}

// PutJSON implements blob.Blob by marshaling value and delegating to Put.
func (b *Blob) PutJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("azureblob: marshaling JSON for %s: %w", key, err)
	}

	return b.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json", nil, "")
}

// GetJSON implements blob.Blob via a GET request.
func (b *Blob) GetJSON(ctx context.Context, key string, value any) error {
	req, err := b.newRequest(ctx, http.MethodGet, b.blobURL(key), nil, 0)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("azureblob: get %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return blob.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("azureblob: get %s: unexpected status %d", key, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(value); err != nil {
		return fmt.Errorf("azureblob: decoding JSON for %s: %w", key, err)
	}

	return nil
}

// TestConnection checks container reachability via a GET on the container's
// properties, mirroring the original test_connection probe.
func (b *Blob) TestConnection(ctx context.Context) error {
	u := fmt.Sprintf("%s/%s?restype=container", b.endpoint, b.container)

	req, err := b.newRequest(ctx, http.MethodGet, u, nil, 0)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("azureblob: test connection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("azureblob: test connection: unexpected status %d", resp.StatusCode)
	}

	return nil
}

var _ blob.Blob = (*Blob)(nil)
