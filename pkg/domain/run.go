package domain

import (
	"encoding"
	"time"
)

type RunState string

const (
	RunIdle       RunState = "IDLE"
	RunProcessing RunState = "PROCESSING"
	RunSucceeded  RunState = "SUCCEEDED"
	RunFailed     RunState = "FAILED"
)

// Terminal reports whether the state ends a job run.
func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

var (
	_ encoding.BinaryMarshaler = RunState("")
	_ encoding.TextMarshaler   = RunState("")
)

func (s RunState) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s RunState) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

// Result references the output of a succeeded run: a remote URL or a local
// file:// reference materialised from a binary payload.
type Result struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Local       bool   `json:"local,omitempty"`
}

type ErrorInfo struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// JobRun is one attempt to execute a model against a snapshot of inputs.
// Result is set only in RunSucceeded, Error only in RunFailed.
type JobRun struct {
	ID         string         `json:"id,omitempty"`
	ModelID    string         `json:"modelId"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	State      RunState       `json:"state"`
	Progress   int            `json:"progress"`
	Result     *Result        `json:"result,omitempty"`
	Error      *ErrorInfo     `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt,omitempty"`
	FinishedAt time.Time      `json:"finishedAt,omitempty"`
}

// RunOutput is the collaborator's answer to a run request: either a
// reference or a binary payload.
type RunOutput struct {
	ImageURL    string `json:"imageUrl,omitempty"`
	Data        []byte `json:"-"`
	ContentType string `json:"-"`
}

// LocalFile is an opaque handle to a file on disk, used for video/audio
// values and for images that are about to be uploaded.
type LocalFile struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}
