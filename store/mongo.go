// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

// Package store persists user accounts and chat transcripts in MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// DefaultConnectTimeout is the default connection timeout.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultOperationTimeout bounds individual reads and writes.
	DefaultOperationTimeout = 10 * time.Second

	// DefaultMaxPoolSize is the default maximum connection pool size.
	DefaultMaxPoolSize = 100

	// DefaultMinPoolSize is the default minimum connection pool size.
	DefaultMinPoolSize = 10
)

// Sentinel errors shared by the typed stores.
var (
	// ErrNotFound is returned when the referenced document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned when a unique field (email, username) is taken.
	ErrDuplicate = errors.New("duplicate document")
)

// Config contains MongoDB connection configuration.
type Config struct {
	URI            string        // Required: mongodb:// connection string
	Database       string        // Required: database name
	ConnectTimeout time.Duration // Optional: default 10s
	MaxPoolSize    uint64        // Optional: default 100
	MinPoolSize    uint64        // Optional: default 10
	AppName        string        // Optional: reported to the server for monitoring
}

// Client wraps a connected MongoDB client and exposes the typed stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	users  *UserStore
	chats  *ChatStore
}

// Connect establishes a MongoDB connection with pooling and verifies it
// with a ping. A failed ping is a startup-time fatal for the caller, not a
// runtime surprise.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database name is required")
	}

	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = DefaultMaxPoolSize
	}
	if cfg.MinPoolSize == 0 {
		cfg.MinPoolSize = DefaultMinPoolSize
	}
	if cfg.AppName == "" {
		cfg.AppName = "promptgate-gateway"
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAppName(cfg.AppName).
		SetRetryWrites(true).
		SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	return &Client{
		client: client,
		db:     db,
		users:  &UserStore{collection: db.Collection("users")},
		chats:  &ChatStore{collection: db.Collection("chat_histories")},
	}, nil
}

// Users returns the user store.
func (c *Client) Users() *UserStore {
	return c.users
}

// Chats returns the chat history store.
func (c *Client) Chats() *ChatStore {
	return c.chats
}

// Ping verifies the connection is still healthy.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (c *Client) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.client.Disconnect(disconnectCtx)
}
