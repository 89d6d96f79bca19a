package invoicing

import (
	"fmt"
	"strings"
)

// FieldError names one offending form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when form input breaks a required-field or business rule.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message recorded for field, if any.
func (e *ValidationError) Field(field string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message, true
		}
	}
	return "", false
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// PreconditionError means required request context was missing.
type PreconditionError struct {
	Requirement string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Requirement
}

// BookContext scopes every call to one accounting book (tenant).
type BookContext struct {
	BookID string
}

// Require fails when no book is selected.
func (b BookContext) Require() error {
	if strings.TrimSpace(b.BookID) == "" {
		return &PreconditionError{Requirement: "an active book is required to address the accounting API"}
	}
	return nil
}
