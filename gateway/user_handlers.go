// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"promptgate/gateway/store"
)

// jwtSecret signs session tokens. Populated from configuration at startup;
// an empty secret is a startup-time fatal, never a runtime surprise.
var jwtSecret []byte

// sessionTokenTTL is how long an issued login token stays valid.
const sessionTokenTTL = 24 * time.Hour

// UserRepo is the narrow persistence surface the user handlers need.
// store.UserStore satisfies it; tests use an in-memory fake.
type UserRepo interface {
	Create(ctx context.Context, user *store.User) error
	FindByEmail(ctx context.Context, email string) (*store.User, error)
	FindByID(ctx context.Context, id string) (*store.User, error)
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID, when time.Time) error
}

func registerHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	if !checkRateLimit(w, r, TierAuth, start, requestID) {
		observeRequest("register", "rate_limited", time.Since(start).Milliseconds())
		return
	}

	raw, err := decodeBody(r.Body)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "invalid request body", nil, start, requestID)
		return
	}

	result := registerSchema.Validate(raw)
	if !result.Valid {
		observeRequest("register", "invalid", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusBadRequest, "validation failed", result.FieldErrors, start, requestID)
		return
	}

	strength := CheckPasswordStrength(result.Data["password"])
	if !strength.Valid {
		gatewayLog.Warn(clientIP(r), requestID, "weak password rejected",
			map[string]interface{}{"violations": describeViolations(strength.Violations)})
		observeRequest("register", "invalid", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusBadRequest, "password does not meet strength requirements",
			strength.Violations, start, requestID)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(result.Data["password"]), bcrypt.DefaultCost)
	if err != nil {
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "password hashing failed",
			http.StatusInternalServerError, err, nil)
		observeRequest("register", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	user := &store.User{
		Username:     result.Data["username"],
		Email:        result.Data["email"],
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := userRepo.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			observeRequest("register", "invalid", time.Since(start).Milliseconds())
			sendErrorResponse(w, http.StatusBadRequest, "username or email already registered",
				nil, start, requestID)
			return
		}
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "user creation failed",
			http.StatusInternalServerError, err, nil)
		observeRequest("register", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	gatewayLog.Info(clientIP(r), requestID, "user registered",
		map[string]interface{}{"user_id": user.ID.Hex()})

	observeRequest("register", "success", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "user registered successfully",
		"user": map[string]interface{}{
			"id":        user.ID.Hex(),
			"username":  user.Username,
			"email":     user.Email,
			"createdAt": user.CreatedAt.Format(time.RFC3339),
		},
		"metadata": newMetadata(start, requestID),
	})
}

func loginHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	if !checkRateLimit(w, r, TierAuth, start, requestID) {
		observeRequest("login", "rate_limited", time.Since(start).Milliseconds())
		return
	}

	raw, err := decodeBody(r.Body)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "invalid request body", nil, start, requestID)
		return
	}

	result := loginSchema.Validate(raw)
	if !result.Valid {
		observeRequest("login", "invalid", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusBadRequest, "validation failed", result.FieldErrors, start, requestID)
		return
	}

	user, err := userRepo.FindByEmail(r.Context(), result.Data["email"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			observeRequest("login", "unauthorized", time.Since(start).Milliseconds())
			sendErrorResponse(w, http.StatusUnauthorized, "invalid email or password", nil, start, requestID)
			return
		}
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "user lookup failed",
			http.StatusInternalServerError, err, nil)
		observeRequest("login", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(result.Data["password"])); err != nil {
		gatewayLog.Warn(clientIP(r), requestID, "login rejected: bad credentials",
			map[string]interface{}{"user_id": user.ID.Hex()})
		observeRequest("login", "unauthorized", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusUnauthorized, "invalid email or password", nil, start, requestID)
		return
	}

	now := time.Now().UTC()
	if err := userRepo.UpdateLastLogin(r.Context(), user.ID, now); err != nil {
		// Login still succeeds; the stamp is best-effort.
		gatewayLog.Warn(clientIP(r), requestID, "failed to stamp last login",
			map[string]interface{}{"user_id": user.ID.Hex(), "error": err.Error()})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID.Hex(),
		"username": user.Username,
		"email":    user.Email,
		"exp":      now.Add(sessionTokenTTL).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		gatewayLog.ErrorWithCode(clientIP(r), requestID, "token signing failed",
			http.StatusInternalServerError, err, nil)
		observeRequest("login", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, http.StatusInternalServerError, "internal error", nil, start, requestID)
		return
	}

	gatewayLog.Info(clientIP(r), requestID, "user logged in",
		map[string]interface{}{"user_id": user.ID.Hex()})

	observeRequest("login", "success", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"token":   tokenString,
		"user": map[string]interface{}{
			"id":        user.ID.Hex(),
			"username":  user.Username,
			"email":     user.Email,
			"lastLogin": now.Format(time.RFC3339),
		},
		"metadata": newMetadata(start, requestID),
	})
}
