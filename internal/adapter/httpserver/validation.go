package httpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of request-level validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var validJobID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateJobID checks the path-level job id shape before the store is hit.
func ValidateJobID(jobID string) ValidationResult {
	if jobID == "" {
		return ValidationResult{Valid: false, Errors: []ValidationError{{
			Field: "id", Code: "REQUIRED", Message: "Job ID is required",
		}}}
	}
	if len(jobID) > 100 {
		return ValidationResult{Valid: false, Errors: []ValidationError{{
			Field: "id", Code: "TOO_LONG", Message: "Job ID is too long (max 100 characters)",
		}}}
	}
	if !validJobID.MatchString(jobID) {
		return ValidationResult{Valid: false, Errors: []ValidationError{{
			Field: "id", Code: "INVALID_FORMAT", Message: "Job ID contains invalid characters",
		}}}
	}
	return ValidationResult{Valid: true}
}

// SanitizeOwner normalizes the owner header value.
func SanitizeOwner(owner string) string {
	owner = strings.ReplaceAll(owner, "\x00", "")
	owner = strings.TrimSpace(owner)
	if len(owner) > 200 {
		owner = owner[:200]
	}
	if !utf8.ValidString(owner) {
		owner = strings.ToValidUTF8(owner, "")
	}
	return owner
}
