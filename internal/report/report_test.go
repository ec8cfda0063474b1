package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/onedrive-backup/internal/discovery"
	"github.com/tonimelisma/onedrive-backup/internal/sync"
	"github.com/tonimelisma/onedrive-backup/internal/workerpool"
)

func TestWriteJobSummary_AggregatesAcrossTargets(t *testing.T) {
	result := &sync.JobResult{
		JobName:  "nightly",
		Duration: 42 * time.Second,
		Sources: []sync.SourceResult{
			{
				SourceName: "corp",
				Targets: []sync.TargetResult{
					{
						Target: discovery.DriveTarget{DisplayName: "alice"},
						Stats:  workerpool.Stats{Processed: 3, Uploaded: 2, Skipped: 1},
					},
					{
						Target:  discovery.DriveTarget{DisplayName: "bob"},
						Stats:   workerpool.Stats{Processed: 1, Failed: 1},
						Aborted: true,
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	WriteJobSummary(&buf, result)

	out := buf.String()
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "ABORTED")
	assert.Contains(t, out, "total: processed=4 uploaded=2 skipped=1")
	assert.Contains(t, out, "result: FAILED")
}

func TestTestConnections_ReportsPassAndFail(t *testing.T) {
	sources := []discovery.SourceConfig{{Name: "corp"}, {Name: "broken"}}

	results := TestConnections(sources, func(s discovery.SourceConfig) error {
		if s.Name == "broken" {
			return errors.New("boom")
		}

		return nil
	}, nil, nil)

	assert.False(t, AllOK(results))
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)

	var buf bytes.Buffer
	WriteCheckResults(&buf, results)
	assert.Contains(t, buf.String(), "FAIL")
	assert.Contains(t, buf.String(), "boom")
}
