package models

import (
	"encoding/json"
	"time"
)

// Procedure is a category in the upstream catalog. ExternalID is immutable
// and acts as the upsert key; only Stage 1 writes procedures.
type Procedure struct {
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	CaseCount  int       `json:"case_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProcedureSet is the full stored procedure collection keyed by external id
type ProcedureSet map[string]Procedure

// MediaRef points at an upstream media asset belonging to a case
type MediaRef struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Case is an individual catalog record belonging to one or more procedures.
// Raw preserves the upstream payload for the hosting application's renderer.
type Case struct {
	ExternalID   string          `json:"external_id"`
	ProcedureIDs []string        `json:"procedure_ids"`
	Title        string          `json:"title"`
	Media        []MediaRef      `json:"media"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Stage identifies one of the three synchronization stages
type Stage int

const (
	StageProcedures Stage = 1
	StageManifest   Stage = 2
	StageCases      Stage = 3
)

func (s Stage) String() string {
	switch s {
	case StageProcedures:
		return "procedures"
	case StageManifest:
		return "manifest"
	case StageCases:
		return "cases"
	default:
		return "unknown"
	}
}

// RunStatus is the lifecycle state of a sync run. Transitions are monotonic:
// a run is never reopened once completed or failed.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether a status allows no further transitions
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProcedureCounts are the Stage 1 upsert totals
type ProcedureCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// CaseCounts are the Stage 3 processing totals
type CaseCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
	Attempted int `json:"attempted"`
}

// Add accumulates another counter set into this one
func (c *CaseCounts) Add(other CaseCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Failed += other.Failed
	c.Attempted += other.Attempted
}

// SyncRun is one end-to-end synchronization attempt. Only the orchestrator
// writes Status.
type SyncRun struct {
	RunID                string          `json:"run_id"`
	Stage                Stage           `json:"stage"`
	Status               RunStatus       `json:"status"`
	StartedAt            time.Time       `json:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	Procedures           ProcedureCounts `json:"procedures"`
	Cases                CaseCounts      `json:"cases"`
	ProcedureCount       int             `json:"procedure_count"`
	ManifestSize         int             `json:"manifest_size"`
	DuplicateOccurrences int             `json:"duplicate_occurrences"`
	DuplicateUniqueIDs   int             `json:"duplicate_unique_ids"`
	CurrentItem          string          `json:"current_item,omitempty"`
	Warnings             []string        `json:"warnings,omitempty"`
	FailureStage         Stage           `json:"failure_stage,omitempty"`
	FailureMessage       string          `json:"failure_message,omitempty"`
}

// Progress returns overall completion as a percentage. Stage 1 and 2 cover
// the first fifth, Stage 3 the rest, weighted by manifest position.
func (r *SyncRun) Progress() float64 {
	switch {
	case r.Status == StatusCompleted:
		return 100
	case r.Stage <= StageProcedures:
		return 5
	case r.Stage == StageManifest:
		return 15
	default:
		if r.ManifestSize == 0 {
			return 20
		}
		pct := 20 + 80*float64(r.Cases.Attempted)/float64(r.ManifestSize)
		if pct > 100 {
			pct = 100
		}
		return pct
	}
}

// Checkpoint persists Stage 3 progress so a later invocation can resume.
// Only the owning stage writes its checkpoint.
type Checkpoint struct {
	RunID     string     `json:"run_id"`
	Stage     Stage      `json:"stage"`
	Cursor    int        `json:"cursor"`
	Counts    CaseCounts `json:"counts"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DuplicateStats summarizes cross-procedure duplicate case ids
type DuplicateStats struct {
	Unique      int `json:"unique"`
	Occurrences int `json:"occurrences"`
}

// Report is the operator-facing summary of a completed or failed run
type Report struct {
	RunID      string          `json:"run_id"`
	Status     RunStatus       `json:"status"`
	Procedures ProcedureCounts `json:"procedures"`
	Cases      CaseCounts      `json:"cases"`
	Duplicates DuplicateStats  `json:"duplicates"`
	Warnings   []string        `json:"warnings,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// RunStatusInfo is the external status view exposed by the orchestrator
type RunStatusInfo struct {
	RunID             string     `json:"run_id"`
	Stage             Stage      `json:"stage"`
	Status            RunStatus  `json:"status"`
	OverallPercentage float64    `json:"overall_percentage"`
	Counts            CaseCounts `json:"counts"`
	CurrentItem       string     `json:"current_item,omitempty"`
}
