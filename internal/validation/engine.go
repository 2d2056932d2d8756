package validation

import (
	"context"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/rules"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/token"
)

// Engine is the external rule engine evaluating a decrypted credential
// against the access token's conditions. The orchestrator treats it as a
// black box: it only aggregates the returned result list.
type Engine interface {
	Validate(ctx context.Context, in *EngineInput) ([]rules.Result, error)
}

// EngineInput is everything the engine needs for one evaluation.
type EngineInput struct {
	// Credential is the decrypted plaintext credential.
	Credential []byte

	// Conditions are the issuer's admission constraints from the access token.
	Conditions *token.AccessTokenConditions

	// ValidationType selects how deep the evaluation goes.
	ValidationType token.AccessTokenType

	// Rules are the destination jurisdiction's business rules.
	Rules []rules.Rule

	// ValueSets are the code lists the rule logic references.
	ValueSets []rules.ValueSet
}
