package analysis

import "fmt"

// Human-resolution operations. The UI collaborator is authoritative:
// these update the result in place and the next chat turn reads the
// updated fields without re-running classification.

// resolvableFields are the medicine fields an ambiguity may target.
var resolvableFields = map[string]bool{
	"name":         true,
	"dosage":       true,
	"frequency":    true,
	"instructions": true,
}

// ResolveAmbiguity applies a user-chosen correction: sets the field on
// the matching medicine, marks it human-verified, and removes the
// ambiguity. When the last ambiguity is gone the state downgrades to
// CLEAR.
func ResolveAmbiguity(r *Result, medicineName, field, chosen string) error {
	if !resolvableFields[field] {
		return fmt.Errorf("unresolvable field %q", field)
	}

	idx := -1
	for i, a := range r.Audit.Ambiguities {
		if a.MedicineName == medicineName && a.Field == field {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no ambiguity for medicine %q field %q", medicineName, field)
	}

	for i := range r.Extraction.Medicines {
		med := &r.Extraction.Medicines[i]
		if med.Name != medicineName {
			continue
		}
		switch field {
		case "name":
			med.Name = chosen
		case "dosage":
			med.Dosage = chosen
		case "frequency":
			med.Frequency = chosen
		case "instructions":
			med.Instructions = chosen
		}
		med.Confidence = 1.0 // user verified
		break
	}

	r.Audit.Ambiguities = append(r.Audit.Ambiguities[:idx], r.Audit.Ambiguities[idx+1:]...)
	downgradeWhenResolved(r)
	return nil
}

// DismissAmbiguity drops an ambiguity without applying any option; the
// user opted to clarify in chat instead.
func DismissAmbiguity(r *Result, index int) error {
	if index < 0 || index >= len(r.Audit.Ambiguities) {
		return fmt.Errorf("ambiguity index %d out of range", index)
	}
	r.Audit.Ambiguities = append(r.Audit.Ambiguities[:index], r.Audit.Ambiguities[index+1:]...)
	downgradeWhenResolved(r)
	return nil
}

// AddManualMedicine appends a user-entered medicine when the handwriting
// was unsafe to guess. Human confirmation lifts overall confidence and
// clears the blocked state.
func AddManualMedicine(r *Result, name, medType string) error {
	if name == "" {
		return fmt.Errorf("medicine name is required")
	}
	display := name
	if medType != "" {
		display = fmt.Sprintf("%s (%s)", name, medType)
	}
	r.Extraction.Medicines = append(r.Extraction.Medicines, Medicine{
		Name:         display,
		Dosage:       "Verifying...",
		Frequency:    "Verifying...",
		Timing:       []string{},
		Instructions: "Manually confirmed by user.",
		Confidence:   1.0,
	})
	// Overall confidence is lifted to at least 0.8, never lowered below
	// a level earlier resolutions already earned.
	if r.Extraction.OverallConfidence < 0.8 {
		r.Extraction.OverallConfidence = 0.8
	}
	r.AmbiguityState = StateClear
	return nil
}

func downgradeWhenResolved(r *Result) {
	if len(r.Audit.Ambiguities) == 0 {
		r.AmbiguityState = StateClear
	}
}
