// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	mathRand "math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// Metadata is attached to every response, success or failure, so clients
// never branch on envelope shape beyond checking for "error".
type Metadata struct {
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	Timestamp        string `json:"timestamp"`
	RequestID        string `json:"request_id"`
}

func newMetadata(start time.Time, requestID string) Metadata {
	return Metadata{
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		RequestID:        requestID,
	}
}

// writeJSON encodes payload with the given status.
func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// sendErrorResponse writes the uniform error envelope.
func sendErrorResponse(w http.ResponseWriter, statusCode int, message string, details interface{}, start time.Time, requestID string) {
	body := map[string]interface{}{
		"error":    message,
		"metadata": newMetadata(start, requestID),
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, statusCode, body)
}

// generateRequestID builds a short unique id for log correlation.
func generateRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().Unix(), generateRandomString(8))
}

func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		// Fallback to math/rand if crypto/rand fails (shouldn't happen)
		for i := range b {
			b[i] = charset[mathRand.Intn(len(charset))]
		}
		return string(b)
	}

	for i := range b {
		b[i] = charset[int(randomBytes[i])%len(charset)]
	}
	return string(b)
}

// clientIP extracts the caller address, honoring X-Forwarded-For when the
// gateway sits behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
