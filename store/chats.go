// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatMessage is a single turn in a transcript.
type ChatMessage struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
}

// ChatHistory is the per-user transcript document. One document per user;
// saves replace the message list and bump UpdatedAt.
type ChatHistory struct {
	ID        string        `bson:"_id" json:"id"`
	UserID    string        `bson:"user_id" json:"userId"`
	Messages  []ChatMessage `bson:"messages" json:"messages"`
	Model     string        `bson:"model,omitempty" json:"model,omitempty"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// ChatStore reads and writes the chat_histories collection.
type ChatStore struct {
	collection *mongo.Collection
}

// Upsert saves the transcript for a user, creating the document on first
// save. Returns the stored history.
func (s *ChatStore) Upsert(ctx context.Context, userID string, messages []ChatMessage, model string) (*ChatHistory, error) {
	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"messages":   messages,
			"model":      model,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":     uuid.NewString(),
			"user_id": userID,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.collection.UpdateOne(opCtx, bson.M{"user_id": userID}, update, opts); err != nil {
		return nil, err
	}

	return s.FindByUserID(ctx, userID)
}

// FindByUserID returns the transcript for a user, or ErrNotFound.
func (s *ChatStore) FindByUserID(ctx context.Context, userID string) (*ChatHistory, error) {
	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	var history ChatHistory
	err := s.collection.FindOne(opCtx, bson.M{"user_id": userID}).Decode(&history)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &history, nil
}
