// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
)

// Request body size cap. Anything larger is rejected before decoding.
const maxBodyBytes = 1 << 20 // 1 MiB

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FieldSchema declares the constraints for one string field. Violated
// constraints are reported in declaration order, all of them, not just the
// first.
type FieldSchema struct {
	Name           string
	Required       bool
	MinLen         int
	MaxLen         int
	Pattern        *regexp.Regexp
	PatternMessage string
}

// Schema is a declarative per-endpoint request schema.
type Schema struct {
	Name   string
	Fields []FieldSchema
}

// FieldError names one violated constraint on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult carries either the normalized payload (unknown fields
// stripped) or the ordered field errors.
type ValidationResult struct {
	Valid       bool
	Data        map[string]string
	FieldErrors []FieldError
}

// Endpoint schemas. Field order here fixes the error reporting order.
var (
	promptSchema = Schema{
		Name: "prompt",
		Fields: []FieldSchema{
			{Name: "input", Required: true, MinLen: 1, MaxLen: 10000},
		},
	}

	registerSchema = Schema{
		Name: "register",
		Fields: []FieldSchema{
			{Name: "username", Required: true, MinLen: 3, MaxLen: 30,
				Pattern: usernamePattern, PatternMessage: "username may only contain letters, numbers, and underscores"},
			{Name: "email", Required: true, MinLen: 3, MaxLen: 254,
				Pattern: emailPattern, PatternMessage: "email must be a valid address"},
			{Name: "password", Required: true, MinLen: 6, MaxLen: 128},
		},
	}

	loginSchema = Schema{
		Name: "login",
		Fields: []FieldSchema{
			{Name: "email", Required: true, MinLen: 3, MaxLen: 254,
				Pattern: emailPattern, PatternMessage: "email must be a valid address"},
			{Name: "password", Required: true, MinLen: 1, MaxLen: 128},
		},
	}
)

// Validate schema-checks a decoded JSON object. All violated constraints
// are collected per field, in schema declaration order. On success Data
// holds only the schema's fields, so re-validating a validated payload is
// a no-op.
func (s Schema) Validate(raw map[string]interface{}) *ValidationResult {
	result := &ValidationResult{
		Valid: true,
		Data:  make(map[string]string, len(s.Fields)),
	}

	for _, field := range s.Fields {
		value, present := raw[field.Name]

		if !present || value == nil {
			if field.Required {
				result.addError(field.Name, fmt.Sprintf("%s is required", field.Name))
			}
			continue
		}

		str, ok := value.(string)
		if !ok {
			result.addError(field.Name, fmt.Sprintf("%s must be a string", field.Name))
			continue
		}

		length := len([]rune(str))
		if field.MinLen > 0 && length < field.MinLen {
			result.addError(field.Name,
				fmt.Sprintf("%s must be at least %d characters", field.Name, field.MinLen))
		}
		if field.MaxLen > 0 && length > field.MaxLen {
			result.addError(field.Name,
				fmt.Sprintf("%s must be at most %d characters", field.Name, field.MaxLen))
		}
		if field.Pattern != nil && str != "" && !field.Pattern.MatchString(str) {
			result.addError(field.Name, field.PatternMessage)
		}

		result.Data[field.Name] = str
	}

	if !result.Valid {
		result.Data = nil
	}
	return result
}

func (r *ValidationResult) addError(field, message string) {
	r.Valid = false
	r.FieldErrors = append(r.FieldErrors, FieldError{Field: field, Message: message})
}

// decodeBody reads and decodes a JSON object body with a size cap.
func decodeBody(body io.Reader) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	decoder := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return raw, nil
}
