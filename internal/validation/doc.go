// Package validation implements the validation-session protocol orchestrator
// and its HTTP-facing error and response helpers.
//
// The protocol has three steps: initialize opens a subject-keyed session and
// hands the wallet the service's public keys; validate consumes a bearer
// access token exactly once and processes the encrypted credential into a
// signed result token; status polls the verdict on the private channel.
package validation
