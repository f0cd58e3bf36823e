package analysis

import "testing"

func unresolvedResult() *Result {
	return &Result{
		Extraction: ExtractionResult{
			Medicines: []Medicine{
				{Name: "Amoxicillin", Dosage: "500mg", Confidence: 0.5},
			},
			OverallConfidence: 0.5,
		},
		Audit: AuditResult{
			Ambiguities: []Ambiguity{
				{MedicineName: "Amoxicillin", Field: "dosage", Issue: "smudged", Options: []string{"250mg", "500mg"}},
			},
		},
		AmbiguityState: StateClarifiable,
	}
}

func TestResolveAmbiguityAppliesChoice(t *testing.T) {
	r := unresolvedResult()
	if err := ResolveAmbiguity(r, "Amoxicillin", "dosage", "250mg"); err != nil {
		t.Fatalf("ResolveAmbiguity: %v", err)
	}

	med := r.Extraction.Medicines[0]
	if med.Dosage != "250mg" {
		t.Errorf("Dosage = %q, want 250mg", med.Dosage)
	}
	if med.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", med.Confidence)
	}
	if len(r.Audit.Ambiguities) != 0 {
		t.Errorf("Ambiguities = %v, want empty", r.Audit.Ambiguities)
	}
	if r.AmbiguityState != StateClear {
		t.Errorf("AmbiguityState = %q, want CLEAR", r.AmbiguityState)
	}
}

func TestResolveAmbiguityRejectsUnknownField(t *testing.T) {
	r := unresolvedResult()
	if err := ResolveAmbiguity(r, "Amoxicillin", "color", "blue"); err == nil {
		t.Fatal("want error for unknown field")
	}
	if err := ResolveAmbiguity(r, "Nope", "dosage", "250mg"); err == nil {
		t.Fatal("want error for unknown ambiguity")
	}
}

func TestDismissAmbiguity(t *testing.T) {
	r := unresolvedResult()
	if err := DismissAmbiguity(r, 0); err != nil {
		t.Fatalf("DismissAmbiguity: %v", err)
	}
	if r.AmbiguityState != StateClear {
		t.Errorf("AmbiguityState = %q, want CLEAR", r.AmbiguityState)
	}
	if err := DismissAmbiguity(r, 5); err == nil {
		t.Error("want error for out-of-range index")
	}
	// Original dosage untouched.
	if r.Extraction.Medicines[0].Dosage != "500mg" {
		t.Errorf("Dosage = %q, want unchanged", r.Extraction.Medicines[0].Dosage)
	}
}

func TestAddManualMedicine(t *testing.T) {
	r := &Result{
		Extraction:     ExtractionResult{Medicines: []Medicine{}, OverallConfidence: 0.3},
		AmbiguityState: StateUnresolvable,
	}
	if err := AddManualMedicine(r, "Paracetamol", "Tablet"); err != nil {
		t.Fatalf("AddManualMedicine: %v", err)
	}

	if len(r.Extraction.Medicines) != 1 {
		t.Fatalf("Medicines = %v, want 1 entry", r.Extraction.Medicines)
	}
	med := r.Extraction.Medicines[0]
	if med.Name != "Paracetamol (Tablet)" {
		t.Errorf("Name = %q", med.Name)
	}
	if med.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", med.Confidence)
	}
	if r.Extraction.OverallConfidence != 0.8 {
		t.Errorf("OverallConfidence = %v, want 0.8", r.Extraction.OverallConfidence)
	}
	if r.AmbiguityState != StateClear {
		t.Errorf("AmbiguityState = %q, want CLEAR", r.AmbiguityState)
	}

	if err := AddManualMedicine(r, "", ""); err == nil {
		t.Error("want error for empty name")
	}
}

func TestAddManualMedicineKeepsHigherConfidence(t *testing.T) {
	r := &Result{
		Extraction:     ExtractionResult{Medicines: []Medicine{}, OverallConfidence: 0.95},
		AmbiguityState: StateClear,
	}
	if err := AddManualMedicine(r, "Paracetamol", ""); err != nil {
		t.Fatalf("AddManualMedicine: %v", err)
	}
	if r.Extraction.OverallConfidence != 0.95 {
		t.Errorf("OverallConfidence = %v, want 0.95 kept", r.Extraction.OverallConfidence)
	}
	if r.Extraction.Medicines[0].Name != "Paracetamol" {
		t.Errorf("Name = %q, want no type suffix", r.Extraction.Medicines[0].Name)
	}
}
