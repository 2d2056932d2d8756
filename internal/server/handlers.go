package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/validation"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleInitialize opens a validation session and returns the subject, the
// session expiry and the service's current public keys.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req validation.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validation.RespondWithErrorResponse(w, r,
			validation.NewBadRequestError("request body is not valid JSON"))
		return
	}

	resp, err := s.service.Initialize(r.Context(), &req)
	if err != nil {
		validation.RespondWithErrorResponse(w, r, err)
		return
	}
	validation.RespondWithJSONPayload(w, http.StatusOK, resp)
}

// handleValidate processes one encrypted credential submission under the
// bearer access token and returns the signed result token.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	bearer, ok := bearerToken(r)
	if !ok {
		validation.RespondWithErrorResponse(w, r,
			validation.NewAuthError("missing bearer access token"))
		return
	}

	var req validation.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		validation.RespondWithErrorResponse(w, r,
			validation.NewBadRequestError("request body is not valid JSON"))
		return
	}

	resultToken, err := s.service.Submit(r.Context(), bearer, &req)
	if err != nil {
		validation.RespondWithErrorResponse(w, r, err)
		return
	}
	validation.RespondWithSignedContent(w, http.StatusOK, resultToken)
}

// handleStatus returns the result token once the session is READY and 204
// while it is still OPEN. The caller authenticates with the session's
// bearer access token.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	bearer, ok := bearerToken(r)
	if !ok {
		validation.RespondWithErrorResponse(w, r,
			validation.NewAuthError("missing bearer access token"))
		return
	}
	subject := chi.URLParam(r, "subject")

	resultToken, ready, err := s.service.Status(r.Context(), bearer, subject)
	if err != nil {
		validation.RespondWithErrorResponse(w, r, err)
		return
	}
	if !ready {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	validation.RespondWithSignedContent(w, http.StatusOK, resultToken)
}

// handleIdentity serves the service's identity document, optionally filtered
// by element and verification method type. Always served fresh so key
// rotation propagates immediately.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	element := chi.URLParam(r, "element")
	methodType := chi.URLParam(r, "type")

	doc, err := s.identity.FilteredDocument(element, methodType)
	if err != nil {
		validation.RespondWithErrorResponse(w, r, err)
		return
	}
	validation.RespondWithJSONPayload(w, http.StatusOK, doc)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
