package analysis

const (
	// GateConfidenceThreshold is the minimum validation confidence to
	// proceed past the safety gate.
	GateConfidenceThreshold = 0.70
	// ClearConfidenceThreshold is the minimum extraction confidence for
	// the CLEAR state. Same value as the gate threshold; whether that
	// coupling is intentional is an open product question, so the two
	// decisions keep separate constants.
	ClearConfidenceThreshold = 0.70
)

// GateRejectionFlag is the single safety flag on a gate-rejected result.
const GateRejectionFlag = "Image rejected by safety gate."

// The two fixed flags injected for the UNRESOLVABLE state.
const (
	FlagHandwritingUnclear = "Handwriting too unclear for safe AI interpretation"
	FlagNoSafeCandidates   = "No medically safe correction candidates available"
)

// Classify maps extraction confidence and audit ambiguities to an
// ambiguity state and the updated safety-flag list. Pure and
// deterministic; idempotent under set semantics, so re-classifying the
// same audit never duplicates the fixed flags.
func Classify(overallConfidence float64, ambiguities []Ambiguity, safetyFlags []string) (AmbiguityState, []string) {
	if overallConfidence >= ClearConfidenceThreshold {
		return StateClear, safetyFlags
	}

	for _, a := range ambiguities {
		if len(a.Options) > 0 {
			return StateClarifiable, safetyFlags
		}
	}

	flags := appendFlag(safetyFlags, FlagHandwritingUnclear)
	flags = appendFlag(flags, FlagNoSafeCandidates)
	return StateUnresolvable, flags
}

// appendFlag adds flag unless already present, preserving insertion order.
func appendFlag(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
