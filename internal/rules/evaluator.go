package rules

// blocking categories: a failure here invalidates the credential outright
// and short-circuits everything else.
func blocking(t ResultType) bool {
	return t == ResultTypeTechnicalVerification || t == ResultTypeIssuerInvalidation
}

// Evaluate aggregates per-rule outcomes into one verdict:
//
//   - NOK in a blocking category (TechnicalVerification, IssuerInvalidation)
//     makes the verdict NOK, regardless of anything else.
//   - Otherwise any CHK, or any NOK in a non-blocking acceptance category,
//     makes the verdict CHK (needs manual cross-check at the point of use).
//   - Otherwise OK.
//
// The verdict is a pure set-predicate: the order of results never matters.
// An empty result list evaluates to OK.
func Evaluate(results []Result) Outcome {
	verdict := OutcomeOK
	for _, r := range results {
		switch r.Result {
		case OutcomeNOK:
			if blocking(r.Type) {
				return OutcomeNOK
			}
			verdict = OutcomeCheck
		case OutcomeCheck:
			verdict = OutcomeCheck
		}
	}
	return verdict
}
