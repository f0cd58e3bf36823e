// Package schedule turns a verified extraction into a structured daily
// medication schedule via an on-demand model stage.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rxlens/rxlens/internal/analysis"
	"github.com/rxlens/rxlens/internal/vision"
)

// Entry is one medicine's daily slot mapping.
type Entry struct {
	Medicine     string `json:"medicine"`
	Morning      bool   `json:"morning"`
	Afternoon    bool   `json:"afternoon"`
	Night        bool   `json:"night"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions"`
	DurationDays int    `json:"duration_days"`
}

// Plan is the generated schedule. Schedule is never nil.
type Plan struct {
	Schedule []Entry `json:"schedule"`
}

// Generator produces plans from analysis results.
type Generator struct {
	client *vision.Client
}

// NewGenerator creates a Generator on the given client.
func NewGenerator(client *vision.Client) *Generator {
	return &Generator{client: client}
}

// Generate runs the schedule stage over the result's extraction,
// including any human corrections applied since analysis, and decodes
// the plan. Decode failure degrades to an empty plan, matching the
// pipeline's stage-local recovery policy.
func (g *Generator) Generate(ctx context.Context, res *analysis.Result) (Plan, error) {
	contextJSON, err := json.Marshal(res.Extraction)
	if err != nil {
		return Plan{}, fmt.Errorf("marshalling schedule context: %w", err)
	}

	text, err := analysis.RunStage(ctx, g.client, analysis.StageScheduleFinal,
		vision.UserText(fmt.Sprintf("Verified Context:\n%s\n\nGenerate schedule JSON.", contextJSON)))
	if err != nil {
		return Plan{}, err
	}

	return decodePlan(text), nil
}

func decodePlan(text string) Plan {
	var p Plan
	if err := json.Unmarshal([]byte(analysis.StripCodeFences(text)), &p); err != nil {
		log.Printf("schedule: plan decode failed (%v), raw: %q", err, text)
		return Plan{Schedule: []Entry{}}
	}
	if p.Schedule == nil {
		p.Schedule = []Entry{}
	}
	return p
}
