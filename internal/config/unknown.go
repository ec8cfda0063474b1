package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeysBySection maps each top-level TOML table to the set of field
// names it recognizes. "" holds the flat top-level keys.
var knownKeysBySection = map[string]map[string]bool{
	"": {
		"max_parallel_workers": true, "retry_attempts": true, "retry_delay": true,
		"chunk_size": true,
	},
	"auth": {
		"tenant_id": true, "client_id": true, "client_secret_env": true,
	},
	"sources": {
		"name": true, "type": true, "users": true, "site_url": true, "libraries": true,
	},
	"destinations": {
		"name": true, "kind": true, "bucket": true, "endpoint": true, "region": true,
		"use_ssl": true, "access_key_env": true, "secret_key_env": true,
		"account": true, "container": true, "account_key_env": true,
		"prefix": true, "storage_class": true,
		"encrypt_filenames": true, "encryption_key_env": true,
	},
	"jobs": {
		"name": true, "sources": true, "destination": true, "enabled": true, "dry_run": true,
	},
	"logging": {
		"level": true, "format": true,
	},
	"history": {
		"db_path": true,
	},
}

// knownKeysListBySection is the sorted slice form of each section's key
// set, for deterministic Levenshtein suggestions.
var knownKeysListBySection = func() map[string][]string {
	out := make(map[string][]string, len(knownKeysBySection))

	for section, keys := range knownKeysBySection {
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}

		sort.Strings(list)
		out[section] = list
	}

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		if err := buildKeyError(key.String()); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// buildKeyError classifies keyStr by its section (the portion before the
// first ".", when that portion names a known section) and reports an error
// naming the closest known key in that section, if any.
func buildKeyError(keyStr string) error {
	parts := strings.Split(keyStr, ".")

	section := ""
	field := parts[0]

	if len(parts) > 1 {
		if _, ok := knownKeysBySection[parts[0]]; ok {
			section = parts[0]
			field = parts[len(parts)-1]
		}
	}

	known := knownKeysBySection[section]
	if known[field] {
		return nil
	}

	suggestion := closestMatch(field, knownKeysListBySection[section])

	label := field
	if section != "" {
		label = section + "." + field
	}

	if suggestion != "" {
		return fmt.Errorf("unknown config key %q — did you mean %q?", label, suggestion)
	}

	return fmt.Errorf("unknown config key %q", label)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
