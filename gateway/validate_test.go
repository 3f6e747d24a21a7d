// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptSchemaValid(t *testing.T) {
	result := promptSchema.Validate(map[string]interface{}{"input": "hello"})

	require.True(t, result.Valid)
	assert.Equal(t, "hello", result.Data["input"])
	assert.Empty(t, result.FieldErrors)
}

func TestPromptSchemaStripsUnknownFields(t *testing.T) {
	result := promptSchema.Validate(map[string]interface{}{
		"input":   "hello",
		"evil":    "ignored",
		"verbose": true,
	})

	require.True(t, result.Valid)
	assert.Len(t, result.Data, 1)
	_, present := result.Data["evil"]
	assert.False(t, present)
}

func TestPromptSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		wantMsg string
	}{
		{
			name:    "missing input",
			raw:     map[string]interface{}{},
			wantMsg: "input is required",
		},
		{
			name:    "empty input",
			raw:     map[string]interface{}{"input": ""},
			wantMsg: "input must be at least 1 characters",
		},
		{
			name:    "input too long",
			raw:     map[string]interface{}{"input": strings.Repeat("a", 10001)},
			wantMsg: "input must be at most 10000 characters",
		},
		{
			name:    "wrong type",
			raw:     map[string]interface{}{"input": 42.0},
			wantMsg: "input must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := promptSchema.Validate(tt.raw)
			require.False(t, result.Valid)
			assert.Nil(t, result.Data)
			require.Len(t, result.FieldErrors, 1)
			assert.Equal(t, tt.wantMsg, result.FieldErrors[0].Message)
		})
	}
}

func TestRegisterSchemaCollectsAllViolations(t *testing.T) {
	// One invalid value per field: every violation must be reported in
	// declaration order, not just the first.
	result := registerSchema.Validate(map[string]interface{}{
		"username": "a!",
		"email":    "not-an-email",
		"password": "abc",
	})

	require.False(t, result.Valid)
	require.Len(t, result.FieldErrors, 4)
	assert.Equal(t, "username", result.FieldErrors[0].Field)
	assert.Equal(t, "username must be at least 3 characters", result.FieldErrors[0].Message)
	assert.Equal(t, "username", result.FieldErrors[1].Field)
	assert.Equal(t, "username may only contain letters, numbers, and underscores", result.FieldErrors[1].Message)
	assert.Equal(t, "email", result.FieldErrors[2].Field)
	assert.Equal(t, "password", result.FieldErrors[3].Field)
	assert.Equal(t, "password must be at least 6 characters", result.FieldErrors[3].Message)
}

func TestRegisterSchemaValid(t *testing.T) {
	result := registerSchema.Validate(map[string]interface{}{
		"username": "prompt_fan42",
		"email":    "fan@example.com",
		"password": "Abcdef1!",
	})

	require.True(t, result.Valid)
	assert.Equal(t, "prompt_fan42", result.Data["username"])
	assert.Equal(t, "fan@example.com", result.Data["email"])
}

func TestLoginSchema(t *testing.T) {
	result := loginSchema.Validate(map[string]interface{}{
		"email":    "fan@example.com",
		"password": "x",
	})
	require.True(t, result.Valid)

	result = loginSchema.Validate(map[string]interface{}{"email": "nope"})
	require.False(t, result.Valid)
	assert.Len(t, result.FieldErrors, 2)
}

func TestValidateIdempotent(t *testing.T) {
	// Re-validating a normalized payload yields the same payload.
	first := registerSchema.Validate(map[string]interface{}{
		"username": "prompt_fan",
		"email":    "fan@example.com",
		"password": "Abcdef1!",
		"extra":    "dropped",
	})
	require.True(t, first.Valid)

	raw := make(map[string]interface{}, len(first.Data))
	for k, v := range first.Data {
		raw[k] = v
	}

	second := registerSchema.Validate(raw)
	require.True(t, second.Valid)
	assert.Equal(t, first.Data, second.Data)
}

func TestDecodeBody(t *testing.T) {
	raw, err := decodeBody(strings.NewReader(`{"input":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", raw["input"])

	_, err = decodeBody(strings.NewReader(`not json`))
	assert.Error(t, err)
}
