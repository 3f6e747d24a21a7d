// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

// Command gateway starts the PromptGate LLM gateway.
//
// Required environment variables:
//
//	SCIRA_API_KEY     Scira vendor API key
//	DEEPSEEK_API_KEY  DeepSeek vendor API key
//	GEMINI_API_KEY    Google Gemini API key
//	JWT_SECRET        HMAC secret for session tokens
//
// Optional environment variables:
//
//	PORT              Listen port (default 8080)
//	MONGODB_URI       MongoDB connection string (default mongodb://localhost:27017)
//	MONGODB_DATABASE  Database name (default promptgate)
//	REDIS_URL         Enables the shared Redis rate limiter when set
//	CHAIN_STAGE_FILE  YAML file overriding the default chain stages
package main

import "promptgate/gateway/gateway"

func main() {
	gateway.Run()
}
