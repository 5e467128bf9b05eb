package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// FieldError describes a single field-level validation violation.
type FieldError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ProblemDetail is the RFC7807-style error body the server produces.
type ProblemDetail struct {
	Type          string       `json:"type,omitempty"`
	Title         string       `json:"title"`
	Detail        string       `json:"detail"`
	Status        int          `json:"status"`
	Instance      string       `json:"instance,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
	Fields        []FieldError `json:"fields,omitempty"`
}

// APIError is the typed failure for any non-2xx response. When the server
// responded with a problem-detail body, Problem is populated; otherwise
// RawBody holds whatever the server sent.
type APIError struct {
	StatusCode int
	Problem    *ProblemDetail
	RawBody    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Problem != nil {
		return fmt.Sprintf("api error %d: %s: %s", e.StatusCode, e.Problem.Title, e.Problem.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// IsValidation reports whether the failure is a field-level validation
// rejection.
func (e *APIError) IsValidation() bool {
	return e.Problem != nil && len(e.Problem.Fields) > 0
}

// FieldErrors returns the field-level violations, or nil.
func (e *APIError) FieldErrors() []FieldError {
	if e.Problem == nil {
		return nil
	}
	return e.Problem.Fields
}

// newAPIError builds an APIError from a non-2xx response, consuming and
// closing its body.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return apiErr
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "problem+json") || strings.Contains(contentType, "json") {
		var problem ProblemDetail
		if jsonErr := json.Unmarshal(data, &problem); jsonErr == nil && problem.Title != "" {
			apiErr.Problem = &problem
			return apiErr
		}
	}

	apiErr.RawBody = string(data)
	return apiErr
}
