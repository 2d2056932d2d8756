// Package rules holds the business-rule result model, the verdict
// aggregation logic and the read-through caches for rules and value sets.
package rules

// Outcome is the per-rule (and aggregate) verdict.
type Outcome string

const (
	// OutcomeOK - the rule passed.
	OutcomeOK Outcome = "OK"

	// OutcomeNOK - the rule failed.
	OutcomeNOK Outcome = "NOK"

	// OutcomeCheck - open, needs manual cross-check at the point of use.
	OutcomeCheck Outcome = "CHK"
)

// ResultType categorizes which stage of validation produced a result.
type ResultType string

const (
	ResultTypeTechnicalVerification ResultType = "TechnicalVerification"
	ResultTypeIssuerInvalidation    ResultType = "IssuerInvalidation"
	ResultTypeDestinationAcceptance ResultType = "DestinationAcceptance"
	ResultTypeTravellerAcceptance   ResultType = "TravellerAcceptance"
)

// Result is a single rule evaluation outcome as returned by the rule engine.
type Result struct {
	Identifier string     `json:"identifier"`
	Result     Outcome    `json:"result"`
	Type       ResultType `json:"type"`
	Details    string     `json:"details"`
}
