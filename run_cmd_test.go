package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/discovery"
)

func TestToDiscoverySource(t *testing.T) {
	sc := config.SourceConfig{
		Name:  "onedrive",
		Type:  "personal",
		Users: []string{"alice@contoso.com"},
	}

	got := toDiscoverySource(sc)

	assert.Equal(t, discovery.SourceConfig{
		Name:  "onedrive",
		Type:  discovery.SourcePersonal,
		Users: []string{"alice@contoso.com"},
	}, got)
}

func TestJobSourceConfigs_UnknownSource(t *testing.T) {
	cfg := &config.Config{
		Sources: []config.SourceConfig{{Name: "onedrive", Type: "personal", Users: []string{"all"}}},
	}

	job := config.JobConfig{Name: "nightly", Sources: []string{"does-not-exist"}}

	_, err := jobSourceConfigs(cfg, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestJobSourceConfigs_Resolves(t *testing.T) {
	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "onedrive", Type: "personal", Users: []string{"all"}},
			{Name: "teamsite", Type: "team"},
		},
	}

	job := config.JobConfig{Name: "nightly", Sources: []string{"onedrive", "teamsite"}}

	sources, err := jobSourceConfigs(cfg, job)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "onedrive", sources[0].Name)
	assert.Equal(t, discovery.SourceTeam, sources[1].Type)
}
