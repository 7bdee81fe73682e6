package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusScraping  RunStatus = "scraping"
	RunStatusEnriching RunStatus = "enriching"
	RunStatusExporting RunStatus = "exporting"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// RunParams is the immutable input to one pipeline invocation.
type RunParams struct {
	Queries    []string `json:"queries"`
	Location   string   `json:"location"`
	MaxResults int      `json:"max_results"`
	OutputPath string   `json:"output_path"`
	SkipEnrich bool     `json:"skip_enrich"`
	Resume     bool     `json:"resume"`
}

// Validate checks run parameters before any network or disk activity.
func (p RunParams) Validate() error {
	if len(p.Queries) == 0 {
		return eris.New("params: at least one search query is required")
	}
	for _, q := range p.Queries {
		if strings.TrimSpace(q) == "" {
			return eris.New("params: search queries must not be empty")
		}
	}
	if strings.TrimSpace(p.Location) == "" {
		return eris.New("params: location must not be empty")
	}
	if p.MaxResults < 1 {
		return eris.Errorf("params: max results must be >= 1, got %d", p.MaxResults)
	}
	if strings.TrimSpace(p.OutputPath) == "" {
		return eris.New("params: output path must not be empty")
	}
	return nil
}

// PipelineResult is the success outcome of a run: the final lead list and
// the resolved output path. A run yields either a PipelineResult or an
// error, never both.
type PipelineResult struct {
	Leads      []Lead `json:"leads"`
	OutputPath string `json:"output_path"`
}

// Run is one recorded pipeline invocation.
type Run struct {
	ID        string     `json:"id"`
	Params    RunParams  `json:"params"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the persisted outcome of a run.
type RunResult struct {
	LeadCount  int    `json:"lead_count"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}
