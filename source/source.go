// Copyright © 2023 Meroxa, Inc. & Yalantis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package source implements the MongoDB document source of the migrator.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/minormending/neo4j-galaxy-store/config"
	"github.com/minormending/neo4j-galaxy-store/source/iterator"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// appName is reported to the MongoDB server for every connection.
const appName = "neo4j-galaxy-store"

// errNotOpened occurs when using the [Source] before calling Open.
var errNotOpened = errors.New("source is not opened")

// Source reads documents from a MongoDB database.
type Source struct {
	config config.MongoConfig
	client *mongo.Client
}

// New creates a new instance of the [Source].
func New(cfg config.MongoConfig) *Source {
	return &Source{config: cfg}
}

// Open connects to the MongoDB deployment and makes sure it is reachable.
func (s *Source) Open(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.config.URI).SetAppName(appName))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		// the client is useless at this point, the disconnect error adds nothing
		_ = client.Disconnect(ctx)

		return fmt.Errorf("%w: ping mongo: %w", iterator.ErrSourceUnavailable, err)
	}

	s.client = client

	zerolog.Ctx(ctx).Info().Str("database", s.config.Database).Msg("connected to mongo")

	return nil
}

// Find opens a cursor over every document of the collection.
// The server returns documents in chunks of chunkSize.
func (s *Source) Find(ctx context.Context, collection string, chunkSize int) (iterator.Cursor, error) {
	if s.client == nil {
		return nil, errNotOpened
	}

	cursor, err := s.client.Database(s.config.Database).
		Collection(collection).
		Find(ctx, bson.D{}, options.Find().SetBatchSize(int32(chunkSize))) //nolint:gosec // validated by config
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}

	return cursor, nil
}

// Stream returns a lazy [iterator.Stream] over the records of the collection.
func (s *Source) Stream(ctx context.Context, collection string, chunkSize int) (*iterator.Stream, error) {
	return iterator.New(ctx, s, collection, chunkSize)
}

// Teardown disconnects from the MongoDB deployment.
func (s *Source) Teardown(ctx context.Context) error {
	if s.client != nil {
		if err := s.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("disconnect from mongo: %w", err)
		}
	}

	return nil
}
