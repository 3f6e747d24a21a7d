// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserJSONNeverLeaksPasswordHash(t *testing.T) {
	user := User{
		ID:           primitive.NewObjectID(),
		Username:     "prompt_fan",
		Email:        "fan@example.com",
		PasswordHash: "$2a$10$secret",
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	body := string(data)
	assert.False(t, strings.Contains(body, "secret"))
	assert.False(t, strings.Contains(body, "password"))
	assert.Contains(t, body, "prompt_fan")
}

func TestChatHistoryJSONShape(t *testing.T) {
	history := ChatHistory{
		ID:     "abc-123",
		UserID: "64b0c8f2a1",
		Messages: []ChatMessage{
			{Role: "user", Content: "hello"},
		},
		Model:     "deepseek-chat",
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(history)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc-123", decoded["id"])
	assert.Equal(t, "64b0c8f2a1", decoded["userId"])
	assert.NotNil(t, decoded["messages"])
}
