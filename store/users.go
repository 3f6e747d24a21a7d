// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// User is a registered account. PasswordHash is a bcrypt hash and is never
// serialized to JSON.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	LastLogin    time.Time          `bson:"last_login,omitempty" json:"lastLogin,omitempty"`
}

// UserStore reads and writes the users collection.
type UserStore struct {
	collection *mongo.Collection
}

// Create inserts a new user. Returns ErrDuplicate when the email or
// username is already taken.
func (s *UserStore) Create(ctx context.Context, user *User) error {
	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	filter := bson.M{"$or": []bson.M{
		{"email": user.Email},
		{"username": user.Username},
	}}

	err := s.collection.FindOne(opCtx, filter).Err()
	if err == nil {
		return ErrDuplicate
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err = s.collection.InsertOne(opCtx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// FindByEmail looks up a user by email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	var user User
	err := s.collection.FindOne(opCtx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID looks up a user by its hex object id.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	var user User
	err = s.collection.FindOne(opCtx, bson.M{"_id": objectID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin stamps the user's last successful login time.
func (s *UserStore) UpdateLastLogin(ctx context.Context, id primitive.ObjectID, when time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	result, err := s.collection.UpdateOne(opCtx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_login": when}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
