package refinement

import "fmt"

// Classify maps a raw prediction reply onto an Outcome. Precedence is fixed:
// diagnosis, then escalation, then candidates. Anything else is ErrProtocol.
//
// Classify never mutates raw and never retains it.
func Classify(raw RawResponse) (Outcome, error) {
	if raw.Disease != nil && *raw.Disease != "" {
		return Resolved{Diagnosis: *raw.Disease}, nil
	}

	if raw.Escalate {
		e := Escalated{Reason: raw.Message}
		if raw.FallbackDiagnosis != nil && *raw.FallbackDiagnosis != "" {
			fallback := *raw.FallbackDiagnosis
			e.FallbackDiagnosis = &fallback
		}
		return e, nil
	}

	if len(raw.PossibleDiseases) > 0 {
		candidates := make([]string, len(raw.PossibleDiseases))
		copy(candidates, raw.PossibleDiseases)

		followUps := make([]SymptomID, 0, len(raw.AskMoreSymptoms))
		for _, s := range raw.AskMoreSymptoms {
			followUps = append(followUps, SymptomID(s))
		}
		return Ambiguous{Candidates: candidates, FollowUps: followUps}, nil
	}

	return nil, fmt.Errorf("%w: reply carries no diagnosis, escalation or candidates", ErrProtocol)
}

// downgrade turns an exhausted Ambiguous outcome into a forced Resolved using
// the top-ranked candidate.
func downgrade(a Ambiguous) Resolved {
	if len(a.Candidates) == 0 {
		return Resolved{Diagnosis: UndeterminedDiagnosis, Forced: true}
	}
	return Resolved{Diagnosis: a.Candidates[0], Forced: true}
}
