package analysis

// ValidationResult is the outcome of the prescription-or-not gate stage.
type ValidationResult struct {
	IsPrescription bool    `json:"is_prescription"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

// Medicine is one normalized medication entry extracted from the image.
type Medicine struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage,omitempty"`
	Frequency    string   `json:"frequency,omitempty"`
	Timing       []string `json:"timing"` // subset of morning/afternoon/night
	DurationDays int      `json:"duration_days,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// ExtractionResult is the structured form of the prescription.
// Medicines is never nil: decode normalizes an absent list to empty.
type ExtractionResult struct {
	PatientName       string     `json:"patient_name,omitempty"`
	DoctorName        string     `json:"doctor_name,omitempty"`
	Date              string     `json:"date,omitempty"`
	Medicines         []Medicine `json:"medicines"`
	OverallConfidence float64    `json:"overall_confidence"`
}

// Ambiguity flags one uncertain field on one medicine. An empty Options
// list means the model found no safe correction to suggest.
type Ambiguity struct {
	MedicineName string   `json:"medicine_name"`
	Field        string   `json:"field"` // name, dosage, frequency, instructions
	Issue        string   `json:"issue"`
	Options      []string `json:"options"`
}

// AuditResult is the safety review of the extraction. SafetyFlags keeps
// insertion order and holds no duplicates.
type AuditResult struct {
	Ambiguities     []Ambiguity      `json:"ambiguities"`
	SafetyFlags     []string         `json:"safety_flags"`
	IsSafeToDisplay bool             `json:"is_safe_to_display"`
	Validation      ValidationResult `json:"validation"`
}

// AmbiguityState classifies how trustworthy the extraction is.
// The zero value means no state was computed, which only happens for
// gate-rejected analyses.
type AmbiguityState string

const (
	StateClear        AmbiguityState = "CLEAR"
	StateClarifiable  AmbiguityState = "CLARIFIABLE"
	StateUnresolvable AmbiguityState = "UNRESOLVABLE"
)

// Result is the full outcome of one pipeline run, long-lived for the
// session and read by every subsequent chat turn. Human-resolution
// operations mutate it in place; nothing else does after creation.
type Result struct {
	Validation     ValidationResult `json:"validation"`
	Extraction     ExtractionResult `json:"extraction"`
	Audit          AuditResult      `json:"audit"`
	RawOCR         string           `json:"raw_ocr"`
	AmbiguityState AmbiguityState   `json:"ambiguity_state,omitempty"`
}

// Rejected reports whether the analysis was stopped at the safety gate,
// a terminal state distinct from the three ambiguity states.
func (r *Result) Rejected() bool {
	return r.AmbiguityState == ""
}
