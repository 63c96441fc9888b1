package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

type edge struct {
	from, to Step
}

// expectedEdges is the full transition table, written out independently of
// the implementation.
var expectedEdges = map[edge]bool{
	{StepSearching, StepSelecting}:   true,
	{StepSearching, StepScraping}:    true,
	{StepSearching, StepError}:       true,
	{StepSearching, StepInterrupted}: true,
	{StepSelecting, StepScraping}:    true,
	{StepSelecting, StepDone}:        true,
	{StepSelecting, StepError}:       true,
	{StepScraping, StepDone}:         true,
	{StepScraping, StepError}:        true,
	{StepScraping, StepSlugConflict}: true,
	{StepScraping, StepInterrupted}:  true,
	{StepError, StepSearching}:       true,
	{StepError, StepClosed}:          true,
	{StepSlugConflict, StepScraping}: true,
	{StepSlugConflict, StepDone}:     true,
	{StepSlugConflict, StepClosed}:   true,
	{StepDone, StepClosed}:           true,
	{StepInterrupted, StepSearching}: true,
	{StepInterrupted, StepClosed}:    true,
}

func TestCanTransition_Exhaustive(t *testing.T) {
	for _, from := range Steps {
		for _, to := range Steps {
			want := expectedEdges[edge{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_ClosedIsFinal(t *testing.T) {
	for _, to := range Steps {
		assert.False(t, CanTransition(StepClosed, to))
	}
}

func TestStep_Active(t *testing.T) {
	for _, s := range Steps {
		assert.Equal(t, s == StepSearching || s == StepScraping, s.Active(), string(s))
	}
}

func TestJob_JSON(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{
		DeviceID:  "dev-1",
		Name:      "Galaxy S24",
		State:     SlugConflict{Slug: "galaxy-s24", ExistingID: "dev-9", ExistingName: "Samsung Galaxy S24"},
		Attempts:  2,
		LastLog:   "slug galaxy-s24 already belongs to Samsung Galaxy S24",
		CreatedAt: created,
		UpdatedAt: created,
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "slug_conflict", fields["step"])
	assert.Equal(t, "dev-9", fields["state"].(map[string]any)["existing_id"])

	var decoded Job
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, job, &decoded)
}

func TestJob_JSON_SelectingKeepsOptions(t *testing.T) {
	job := &Job{
		DeviceID: "dev-2",
		Name:     "S24",
		State: Selecting{
			FastMatches:  []models.DeviceSummary{{ID: "d1", Name: "Galaxy S24", Slug: "galaxy-s24"}},
			Options:      []models.AutocompleteOption{{Name: "Samsung Galaxy S24 Ultra", Slug: "galaxy-s24-ultra"}},
			SiteSearched: true,
		},
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded Job
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, job.State, decoded.State)
}

func TestJob_JSON_UnknownStep(t *testing.T) {
	var job Job
	err := json.Unmarshal([]byte(`{"device_id":"d","step":"paused","state":{}}`), &job)
	assert.Error(t, err)
}
