package compliance

import (
	"fmt"
	"strings"
)

// Request carries the material under validation: the guidance text, the
// customer situation it answers, and the agent's reasoning trace.
type Request struct {
	Guidance  string
	Situation string
	Reasoning string
}

// ruleCheck is one deterministic hard constraint. A non-nil issue is an
// unambiguous violation.
type ruleCheck func(req Request) *Issue

// prohibitedPhrases must never appear in guidance text. Each one is a
// direct recommendation, which crosses from guidance into advice.
var prohibitedPhrases = []string{
	"you should transfer",
	"i recommend transferring",
	"we recommend transferring",
	"you should definitely",
	"the best option for you is",
	"the best provider is",
	"guaranteed to grow",
	"guaranteed returns",
	"you can't lose",
	"risk-free",
}

// dbTransferWarningPhrases: at least one must appear when the situation
// involves a defined benefit pension and the guidance discusses
// transfers.
var dbTransferWarningPhrases = []string{
	"guaranteed benefits",
	"safeguarded benefits",
	"valuable guarantees",
	"regulated financial advice is required",
	"advice is legally required",
}

// adviceSignpostPhrases: at least one must appear when the situation
// asks for a personal recommendation.
var adviceSignpostPhrases = []string{
	"regulated financial adviser",
	"independent financial adviser",
	"financial advice",
	"cannot provide advice",
	"can't provide advice",
	"guidance, not advice",
}

// adviceTerritoryMarkers in the situation indicate the customer is
// asking for a personal recommendation.
var adviceTerritoryMarkers = []string{
	"should i transfer",
	"should i move",
	"which provider",
	"which fund",
	"what would you do",
	"tell me what to do",
	"recommend",
}

func defaultRuleChecks() []ruleCheck {
	return []ruleCheck{checkProhibitedPhrases, checkDBTransferWarning, checkAdviceSignposting}
}

func checkProhibitedPhrases(req Request) *Issue {
	lower := strings.ToLower(req.Guidance)
	for _, phrase := range prohibitedPhrases {
		if strings.Contains(lower, phrase) {
			return &Issue{
				Category:    "prohibited_phrase",
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("guidance contains prohibited phrase %q", phrase),
			}
		}
	}
	return nil
}

func checkDBTransferWarning(req Request) *Issue {
	situation := strings.ToLower(req.Situation)
	if !strings.Contains(situation, "defined benefit") && !strings.Contains(situation, "final salary") {
		return nil
	}
	guidance := strings.ToLower(req.Guidance)
	if !strings.Contains(guidance, "transfer") {
		return nil
	}
	for _, phrase := range dbTransferWarningPhrases {
		if strings.Contains(guidance, phrase) {
			return nil
		}
	}
	return &Issue{
		Category:    "missing_db_warning",
		Severity:    SeverityCritical,
		Description: "defined benefit transfer discussed without a guarantees warning",
	}
}

func checkAdviceSignposting(req Request) *Issue {
	situation := strings.ToLower(req.Situation)
	crossing := false
	for _, marker := range adviceTerritoryMarkers {
		if strings.Contains(situation, marker) {
			crossing = true
			break
		}
	}
	if !crossing {
		return nil
	}
	guidance := strings.ToLower(req.Guidance)
	for _, phrase := range adviceSignpostPhrases {
		if strings.Contains(guidance, phrase) {
			return nil
		}
	}
	return &Issue{
		Category:    "missing_signposting",
		Severity:    SeverityMajor,
		Description: "request crosses into regulated advice territory but guidance does not signpost a regulated adviser",
	}
}
