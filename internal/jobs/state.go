package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

// Step names a job state.
type Step string

const (
	StepSearching    Step = "searching"
	StepSelecting    Step = "selecting"
	StepScraping     Step = "scraping"
	StepDone         Step = "done"
	StepError        Step = "error"
	StepSlugConflict Step = "slug_conflict"
	StepInterrupted  Step = "interrupted"
	// StepClosed is the pseudo step of a dismissed job. Closed jobs are removed.
	StepClosed Step = "closed"
)

// Steps lists every step a job can be in, followed by the closed pseudo step.
var Steps = []Step{
	StepSearching, StepSelecting, StepScraping, StepDone,
	StepError, StepSlugConflict, StepInterrupted, StepClosed,
}

// transitions is the complete edge set of the job state machine.
var transitions = map[Step][]Step{
	StepSearching:    {StepSelecting, StepScraping, StepError, StepInterrupted},
	StepSelecting:    {StepScraping, StepDone, StepError},
	StepScraping:     {StepDone, StepError, StepSlugConflict, StepInterrupted},
	StepError:        {StepSearching, StepClosed},
	StepSlugConflict: {StepScraping, StepDone, StepClosed},
	StepDone:         {StepClosed},
	StepInterrupted:  {StepSearching, StepClosed},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Step) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether a job in step s may have pipeline work in flight.
func (s Step) Active() bool {
	return s == StepSearching || s == StepScraping
}

// State is one variant of the job state union. Each variant carries only the
// fields valid for its step.
type State interface {
	Step() Step
	isState()
}

// Searching looks the device up in the catalogue and, when asked, on the
// comparison site.
type Searching struct {
	SearchSite  bool                   `json:"search_site"`
	FastMatches []models.DeviceSummary `json:"fast_matches"`
}

// Selecting waits for a human to confirm a slug or pick an existing device.
type Selecting struct {
	FastMatches  []models.DeviceSummary      `json:"fast_matches"`
	Options      []models.AutocompleteOption `json:"options"`
	SiteSearched bool                        `json:"site_searched"`
}

// Scraping runs the scrape, normalize and import pipeline for one slug.
// AllowConflict skips the existing-slug check after a "treat as unique"
// decision.
type Scraping struct {
	Slug          string `json:"slug"`
	AllowConflict bool   `json:"allow_conflict"`
	Stage         string `json:"stage"`
	Percent       int    `json:"percent"`
}

// Done records the catalogue device the job produced. Linked is set when an
// existing device was imported instead of a scraped one.
type Done struct {
	Slug        string `json:"slug"`
	CatalogID   string `json:"catalog_id"`
	CatalogName string `json:"catalog_name"`
	Linked      bool   `json:"linked"`
}

// Failed is the error step.
type Failed struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Slug    string `json:"slug,omitempty"`
}

// SlugConflict halts a job whose slug already belongs to a catalogue device.
type SlugConflict struct {
	Slug         string `json:"slug"`
	ExistingID   string `json:"existing_id"`
	ExistingName string `json:"existing_name"`
}

// Interrupted marks a job whose process stopped mid-step.
type Interrupted struct {
	During Step   `json:"during"`
	Slug   string `json:"slug,omitempty"`
}

func (Searching) Step() Step    { return StepSearching }
func (Selecting) Step() Step    { return StepSelecting }
func (Scraping) Step() Step     { return StepScraping }
func (Done) Step() Step         { return StepDone }
func (Failed) Step() Step       { return StepError }
func (SlugConflict) Step() Step { return StepSlugConflict }
func (Interrupted) Step() Step  { return StepInterrupted }

func (Searching) isState()    {}
func (Selecting) isState()    {}
func (Scraping) isState()     {}
func (Done) isState()         {}
func (Failed) isState()       {}
func (SlugConflict) isState() {}
func (Interrupted) isState()  {}

// decodeState decodes the variant named by step.
func decodeState(step Step, data json.RawMessage) (State, error) {
	var (
		state State
		err   error
	)
	switch step {
	case StepSearching:
		var s Searching
		err = json.Unmarshal(data, &s)
		state = s
	case StepSelecting:
		var s Selecting
		err = json.Unmarshal(data, &s)
		state = s
	case StepScraping:
		var s Scraping
		err = json.Unmarshal(data, &s)
		state = s
	case StepDone:
		var s Done
		err = json.Unmarshal(data, &s)
		state = s
	case StepError:
		var s Failed
		err = json.Unmarshal(data, &s)
		state = s
	case StepSlugConflict:
		var s SlugConflict
		err = json.Unmarshal(data, &s)
		state = s
	case StepInterrupted:
		var s Interrupted
		err = json.Unmarshal(data, &s)
		state = s
	default:
		return nil, fmt.Errorf("unknown job step %q", step)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", step, err)
	}
	return state, nil
}
