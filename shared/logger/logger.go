// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured JSON logging to stdout.
// Every entry carries the component name and, when available, the request
// id and the client IP so log lines from concurrent requests can be
// correlated.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging for one component.
type Logger struct {
	Component string
	Container string
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Container string                 `json:"container"`
	ClientIP  string                 `json:"client_ip,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Get container name from hostname
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component: component,
		Container: container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, clientIP, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Container: l.Container,
		ClientIP:  clientIP,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	// Write JSON log to stdout (Docker will capture this)
	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, clientIP, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, clientIP, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, clientIP, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(clientIP, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, clientIP, requestID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(clientIP, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(clientIP, requestID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(clientIP, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(clientIP, requestID, message, fields)
}
