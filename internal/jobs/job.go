package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job is the scrape job of one target device. Name is the search string the
// device is resolved from and Attempts counts failed runs. A job is only
// mutated by the Manager; stores hand out copies.
type Job struct {
	DeviceID   string
	Name       string
	DeviceType string
	State      State
	Attempts   int
	LastLog    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Step returns the job's current step.
func (j *Job) Step() Step {
	if j.State == nil {
		return ""
	}
	return j.State.Step()
}

// Clone returns a copy safe to hand to readers. State variants are values and
// are replaced, never mutated, so a shallow copy suffices.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

type jobJSON struct {
	DeviceID   string          `json:"device_id"`
	Name       string          `json:"name"`
	DeviceType string          `json:"device_type,omitempty"`
	Step       Step            `json:"step"`
	State      json.RawMessage `json:"state"`
	Attempts   int             `json:"attempts"`
	LastLog    string          `json:"last_log"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (j *Job) MarshalJSON() ([]byte, error) {
	if j.State == nil {
		return nil, fmt.Errorf("job %s has no state", j.DeviceID)
	}
	state, err := json.Marshal(j.State)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job state: %w", err)
	}
	return json.Marshal(jobJSON{
		DeviceID:   j.DeviceID,
		Name:       j.Name,
		DeviceType: j.DeviceType,
		Step:       j.State.Step(),
		State:      state,
		Attempts:   j.Attempts,
		LastLog:    j.LastLog,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var raw jobJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state, err := decodeState(raw.Step, raw.State)
	if err != nil {
		return err
	}
	*j = Job{
		DeviceID:   raw.DeviceID,
		Name:       raw.Name,
		DeviceType: raw.DeviceType,
		State:      state,
		Attempts:   raw.Attempts,
		LastLog:    raw.LastLog,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
	}
	return nil
}
