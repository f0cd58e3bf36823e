// Package analysis drives the multi-stage reasoning pipeline that turns
// a prescription photo into structured, safety-audited medication data.
// Stage order is fixed: validate, gate, OCR, normalize, audit, classify.
// Only JSON-decode faults are absorbed (per-stage fallbacks); transport
// faults from the model client propagate unmodified.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rxlens/rxlens/internal/vision"
)

// stageParams pins low-temperature sampling for internal reasoning
// stages; conversational defaults stay with chat.
var stageParams = vision.Params{Temperature: 0.1, MaxTokens: 1024, TopP: 0.9}

// Analyzer runs the pipeline against a vision client. It holds no
// per-run state: concurrent sessions can share one Analyzer.
type Analyzer struct {
	client *vision.Client

	// StageHook, when set, is called as each stage starts. Used by the
	// CLI for progress reporting.
	StageHook func(Stage)
}

// NewAnalyzer creates an Analyzer on the given client.
func NewAnalyzer(client *vision.Client) *Analyzer {
	return &Analyzer{client: client}
}

// RunStage executes one pipeline stage: system message from the stage
// prompt, the given user message, full streamed reply collected into one
// string. Exposed for the schedule generator, which reuses the stage
// machinery outside the fixed pipeline order.
func RunStage(ctx context.Context, client *vision.Client, stage Stage, user vision.Message) (string, error) {
	prompt, err := PromptFor(stage)
	if err != nil {
		return "", err
	}
	stream, err := client.Stream(ctx, []vision.Message{vision.SystemMessage(prompt), user}, stageParams)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", stage, err)
	}
	return stream.Collect()
}

func (a *Analyzer) runStage(ctx context.Context, stage Stage, user vision.Message) (string, error) {
	if a.StageHook != nil {
		a.StageHook(stage)
	}
	return RunStage(ctx, a.client, stage, user)
}

// Analyze runs the full pipeline over an image (as a data URL) and
// returns the analysis result. A gate rejection returns a terminal
// rejection result, not an error; client failures in any stage abort
// with the underlying error.
func (a *Analyzer) Analyze(ctx context.Context, imageDataURL string) (*Result, error) {
	validationText, err := a.runStage(ctx, StageValidation,
		vision.UserImage(imageDataURL, "Is this image a doctor's medical prescription?"))
	if err != nil {
		return nil, err
	}
	validation := decodeValidation(validationText)

	if !validation.IsPrescription || validation.Confidence < GateConfidenceThreshold {
		return &Result{
			Validation: validation,
			Extraction: ExtractionResult{Medicines: []Medicine{}, OverallConfidence: 0},
			Audit: AuditResult{
				Ambiguities:     []Ambiguity{},
				SafetyFlags:     []string{GateRejectionFlag},
				IsSafeToDisplay: false,
				Validation:      validation,
			},
			RawOCR: "",
		}, nil
	}

	rawOCR, err := a.runStage(ctx, StageOCR,
		vision.UserImage(imageDataURL, "Please extract all text from this prescription."))
	if err != nil {
		return nil, err
	}

	normalizeText, err := a.runStage(ctx, StageNormalize,
		vision.UserText("Convert this OCR text into the medical JSON schema:\n\n"+rawOCR))
	if err != nil {
		return nil, err
	}
	extraction := decodeExtraction(normalizeText)

	extractionJSON, err := json.Marshal(extraction)
	if err != nil {
		return nil, fmt.Errorf("marshalling extraction for audit: %w", err)
	}
	auditText, err := a.runStage(ctx, StageAudit,
		vision.UserText(fmt.Sprintf("Original OCR Text:\n%s\n\nExtracted JSON:\n%s\n\nAudit for safety and ambiguity.",
			rawOCR, extractionJSON)))
	if err != nil {
		return nil, err
	}
	audit := decodeAudit(auditText)
	audit.Validation = validation

	state, flags := Classify(extraction.OverallConfidence, audit.Ambiguities, audit.SafetyFlags)
	audit.SafetyFlags = flags

	return &Result{
		Validation:     validation,
		Extraction:     extraction,
		Audit:          audit,
		RawOCR:         rawOCR,
		AmbiguityState: state,
	}, nil
}
