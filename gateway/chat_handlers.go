// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"promptgate/gateway/store"
)

// ChatRepo is the persistence surface the chat handlers need.
// store.ChatStore satisfies it; tests use an in-memory fake.
type ChatRepo interface {
	Upsert(ctx context.Context, userID string, messages []store.ChatMessage, model string) (*store.ChatHistory, error)
	FindByUserID(ctx context.Context, userID string) (*store.ChatHistory, error)
}

// chatSaveRequest is the typed body for POST /api/chat/save.
type chatSaveRequest struct {
	UserID   string              `json:"userId"`
	Messages []store.ChatMessage `json:"messages"`
	Model    string              `json:"model,omitempty"`
}

func chatSaveHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	if !checkRateLimit(w, r, TierGeneral, start, requestID) {
		observeRequest("chat_save", "rate_limited", time.Since(start).Milliseconds())
		return
	}

	var req chatSaveRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "invalid request body", nil, start, requestID)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		observeRequest("chat_save", "invalid", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusBadRequest, "validation failed",
			[]string{"userId is required"}, start, requestID)
		return
	}
	if len(req.Messages) == 0 {
		observeRequest("chat_save", "invalid", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusBadRequest, "validation failed",
			[]string{"messages must not be empty"}, start, requestID)
		return
	}

	if _, err := userRepo.FindByID(r.Context(), req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			observeRequest("chat_save", "not_found", time.Since(start).Milliseconds())
			sendErrorResponse(w, http.StatusNotFound, "user not found", nil, start, requestID)
			return
		}
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "user lookup failed",
			http.StatusInternalServerError, err, nil)
		observeRequest("chat_save", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	history, err := chatRepo.Upsert(r.Context(), req.UserID, req.Messages, req.Model)
	if err != nil {
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "chat history save failed",
			http.StatusInternalServerError, err, map[string]interface{}{"user_id": req.UserID})
		observeRequest("chat_save", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	gatewayLog.Info(clientIP(r), requestID, "chat history saved",
		map[string]interface{}{"user_id": req.UserID, "messages": len(history.Messages)})

	observeRequest("chat_save", "success", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "chat history saved",
		"chatHistory": map[string]interface{}{
			"id":           history.ID,
			"messageCount": len(history.Messages),
			"model":        history.Model,
			"updatedAt":    history.UpdatedAt.Format(time.RFC3339),
		},
		"metadata": newMetadata(start, requestID),
	})
}

func chatGetHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	if !checkRateLimit(w, r, TierGeneral, start, requestID) {
		observeRequest("chat_get", "rate_limited", time.Since(start).Milliseconds())
		return
	}

	userID := mux.Vars(r)["userId"]

	if _, err := userRepo.FindByID(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			observeRequest("chat_get", "not_found", time.Since(start).Milliseconds())
			sendErrorResponse(w, http.StatusNotFound, "user not found", nil, start, requestID)
			return
		}
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "user lookup failed",
			http.StatusInternalServerError, err, nil)
		observeRequest("chat_get", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	history, err := chatRepo.FindByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A user with no saved transcript is a normal state, not an error.
			observeRequest("chat_get", "success", time.Since(start).Milliseconds())
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"chatHistory": nil,
				"metadata":    newMetadata(start, requestID),
			})
			return
		}
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "chat history lookup failed",
			http.StatusInternalServerError, err, map[string]interface{}{"user_id": userID})
		observeRequest("chat_get", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	observeRequest("chat_get", "success", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chatHistory": history,
		"metadata":    newMetadata(start, requestID),
	})
}
