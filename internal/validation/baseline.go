package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/rules"
)

// BaselineEngine performs the structural and condition checks the service
// can decide locally. Jurisdiction rule logic is not interpreted here; each
// stored rule yields an open result so the verdict stays CHK until a real
// rule engine is plugged in.
type BaselineEngine struct{}

func NewBaselineEngine() *BaselineEngine { return &BaselineEngine{} }

// credentialClaims is the subset of the credential the baseline checks read.
type credentialClaims struct {
	Version string `json:"ver"`
	Name    struct {
		FamilyNameTransliterated string `json:"fnt"`
		GivenNameTransliterated  string `json:"gnt"`
	} `json:"nam"`
	DateOfBirth string `json:"dob"`
}

func (e *BaselineEngine) Validate(_ context.Context, in *EngineInput) ([]rules.Result, error) {
	var results []rules.Result

	var claims credentialClaims
	if err := json.Unmarshal(in.Credential, &claims); err != nil {
		results = append(results, rules.Result{
			Identifier: "STRUCTURE-01",
			Result:     rules.OutcomeNOK,
			Type:       rules.ResultTypeTechnicalVerification,
			Details:    "credential is not a well-formed JSON document",
		})
		return results, nil
	}
	results = append(results, rules.Result{
		Identifier: "STRUCTURE-01",
		Result:     rules.OutcomeOK,
		Type:       rules.ResultTypeTechnicalVerification,
		Details:    "credential structure parsed",
	})

	results = append(results, e.windowResult(in))
	results = append(results, e.holderResults(in, &claims)...)

	// rule bodies are opaque to the baseline engine; every applicable rule
	// is reported as an open check
	for _, rule := range in.Rules {
		results = append(results, rules.Result{
			Identifier: rule.Identifier,
			Result:     rules.OutcomeCheck,
			Type:       rules.ResultTypeDestinationAcceptance,
			Details:    fmt.Sprintf("rule %s not evaluated, manual check required", rule.Identifier),
		})
	}

	return results, nil
}

// windowResult checks the validation clock against the token's validity
// window when all three instants are present.
func (e *BaselineEngine) windowResult(in *EngineInput) rules.Result {
	c := in.Conditions
	if c.ValidationClock == nil || c.ValidFrom == nil || c.ValidTo == nil {
		return rules.Result{
			Identifier: "WINDOW-01",
			Result:     rules.OutcomeCheck,
			Type:       rules.ResultTypeTravellerAcceptance,
			Details:    "validity window not fully specified",
		}
	}

	clock := *c.ValidationClock
	if clock.Before(*c.ValidFrom) || clock.After(*c.ValidTo) {
		return rules.Result{
			Identifier: "WINDOW-01",
			Result:     rules.OutcomeNOK,
			Type:       rules.ResultTypeTravellerAcceptance,
			Details:    "validation clock outside the credential validity window",
		}
	}
	return rules.Result{
		Identifier: "WINDOW-01",
		Result:     rules.OutcomeOK,
		Type:       rules.ResultTypeTravellerAcceptance,
		Details:    "validation clock within the validity window",
	}
}

// holderResults matches the credential holder against the token conditions.
// Only fields the issuer actually constrained are checked.
func (e *BaselineEngine) holderResults(in *EngineInput, claims *credentialClaims) []rules.Result {
	var results []rules.Result

	match := func(identifier, want, got, field string) {
		outcome := rules.OutcomeOK
		details := field + " matches"
		if !strings.EqualFold(want, got) {
			outcome = rules.OutcomeNOK
			details = field + " does not match the access token conditions"
		}
		results = append(results, rules.Result{
			Identifier: identifier,
			Result:     outcome,
			Type:       rules.ResultTypeTravellerAcceptance,
			Details:    details,
		})
	}

	if in.Conditions.FamilyNameTransliterated != "" {
		match("HOLDER-FNT", in.Conditions.FamilyNameTransliterated, claims.Name.FamilyNameTransliterated, "family name")
	}
	if in.Conditions.GivenNameTransliterated != "" {
		match("HOLDER-GNT", in.Conditions.GivenNameTransliterated, claims.Name.GivenNameTransliterated, "given name")
	}
	if in.Conditions.DateOfBirth != "" {
		match("HOLDER-DOB", in.Conditions.DateOfBirth, claims.DateOfBirth, "date of birth")
	}

	return results
}
