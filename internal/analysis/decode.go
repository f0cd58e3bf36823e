package analysis

import (
	"encoding/json"
	"log"
	"strings"
)

// StripCodeFences removes markdown fence artifacts models wrap around
// JSON replies despite instructions not to.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Stage outputs are decoded with a fixed per-stage fallback: a malformed
// intermediate stage degrades the data, it never aborts the pipeline.
// The raw failing text is logged so bad model output stays diagnosable.

func decodeValidation(text string) ValidationResult {
	var v ValidationResult
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &v); err != nil {
		log.Printf("analysis: validation decode failed (%v), raw: %q", err, text)
		return ValidationResult{IsPrescription: false, Confidence: 0, Reason: "Classification failed"}
	}
	return v
}

func decodeExtraction(text string) ExtractionResult {
	var e ExtractionResult
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &e); err != nil {
		log.Printf("analysis: normalize decode failed (%v), raw: %q", err, text)
		return ExtractionResult{Medicines: []Medicine{}, OverallConfidence: 0}
	}
	if e.Medicines == nil {
		e.Medicines = []Medicine{}
	}
	return e
}

func decodeAudit(text string) AuditResult {
	var a AuditResult
	if err := json.Unmarshal([]byte(StripCodeFences(text)), &a); err != nil {
		log.Printf("analysis: audit decode failed (%v), raw: %q", err, text)
		return AuditResult{Ambiguities: []Ambiguity{}, SafetyFlags: []string{}, IsSafeToDisplay: false}
	}
	if a.Ambiguities == nil {
		a.Ambiguities = []Ambiguity{}
	}
	if a.SafetyFlags == nil {
		a.SafetyFlags = []string{}
	}
	return a
}
