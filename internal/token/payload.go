// Package token builds and parses the compact signed tokens that gate the
// validation protocol: access tokens carrying admission conditions, result
// tokens carrying the verdict, and the confirmation token embedded in the
// result for offline relay to the token issuer.
package token

import (
	"time"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/rules"
)

// AccessTokenType selects how deep the requested validation goes.
type AccessTokenType int

const (
	// AccessTokenTypeStructure - syntactic checks only.
	AccessTokenTypeStructure AccessTokenType = 1

	// AccessTokenTypeCryptographic - structure plus issuer signature checks.
	AccessTokenTypeCryptographic AccessTokenType = 2

	// AccessTokenTypeFull - structure, signature and business rule checks.
	AccessTokenTypeFull AccessTokenType = 3
)

// AccessTokenConditions carries the admission conditions the rule engine
// evaluates the credential against. All fields are set by the token issuer;
// the validation service treats them as opaque constraints.
type AccessTokenConditions struct {
	// Hash binds the token to a specific credential fingerprint (optional).
	Hash string `json:"hash,omitempty"`

	// Lang selects the language for human-readable result details.
	Lang string `json:"lang,omitempty"`

	// holder matching: standardized family/given name transliterations and
	// date of birth
	FamilyNameTransliterated string `json:"fnt,omitempty"`
	GivenNameTransliterated  string `json:"gnt,omitempty"`
	DateOfBirth              string `json:"dob,omitempty"`

	// route: country and region of arrival / departure
	CountryOfArrival   string `json:"coa,omitempty"`
	CountryOfDeparture string `json:"cod,omitempty"`
	RegionOfArrival    string `json:"roa,omitempty"`
	RegionOfDeparture  string `json:"rod,omitempty"`

	// Type lists the acceptable credential types (e.g. "v", "t", "r").
	Type []string `json:"type,omitempty"`

	// Category lists the acceptable credential categories.
	Category []string `json:"category,omitempty"`

	// ValidationClock is the reference instant rules are evaluated at.
	ValidationClock *time.Time `json:"validationClock,omitempty"`

	// credential validity window
	ValidFrom *time.Time `json:"validFrom,omitempty"`
	ValidTo   *time.Time `json:"validTo,omitempty"`
}

// AccessTokenPayload is the payload of the bearer token presented on
// credential submission. Immutable once issued; the jti is admitted exactly
// once by the replay guard.
type AccessTokenPayload struct {
	JTI        string                 `json:"jti"`
	Issuer     string                 `json:"iss"`
	IssuedAt   int64                  `json:"iat"`
	Subject    string                 `json:"sub"`
	Audience   string                 `json:"aud,omitempty"`
	ExpiresAt  int64                  `json:"exp"`
	Type       AccessTokenType        `json:"t"`
	Version    string                 `json:"v"`
	Conditions *AccessTokenConditions `json:"vc,omitempty"`
}

// ResultTokenPayload is the payload of the signed result token returned on
// submission and from the status endpoint.
type ResultTokenPayload struct {
	Subject   string         `json:"sub"`
	Issuer    string         `json:"iss"`
	IssuedAt  int64          `json:"iat"`
	ExpiresAt int64          `json:"exp"`
	Category  []string       `json:"category,omitempty"`
	Result    rules.Outcome  `json:"result"`
	Results   []rules.Result `json:"results"`

	// Confirmation is a compact, independently verifiable token the wallet
	// can relay to the access-token issuer without exposing rule details.
	Confirmation string `json:"confirmation,omitempty"`
}

// ConfirmationTokenPayload is the minimal verdict embedded in the result
// token for relay to the issuer.
type ConfirmationTokenPayload struct {
	JTI       string        `json:"jti"`
	Subject   string        `json:"sub"`
	Issuer    string        `json:"iss"`
	IssuedAt  int64         `json:"iat"`
	ExpiresAt int64         `json:"exp"`
	Result    rules.Outcome `json:"result"`
	Category  []string      `json:"category,omitempty"`
}
