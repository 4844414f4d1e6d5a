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

package iterator

import (
	"context"
	"fmt"

	"github.com/minormending/neo4j-galaxy-store/schema"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
)

// Stream is a lazy, single-pass sequence of the records of one collection.
// Only the current server chunk is held in memory.
type Stream struct {
	cursor     Cursor
	collection string
	// next holds a record fetched by HasNext and not yet returned by Next.
	next    schema.Record
	hasNext bool
	done    bool
	read    int
}

// New opens the collection through the [Finder] and returns a [Stream] over its records.
// The caller must close the stream.
func New(ctx context.Context, finder Finder, collection string, chunkSize int) (*Stream, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("stream %q: %w", collection, errInvalidChunkSize)
	}

	cursor, err := finder.Find(ctx, collection, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: find %q: %w", ErrSourceUnavailable, collection, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("collection", collection).
		Int("chunkSize", chunkSize).
		Msg("opened collection stream")

	return &Stream{
		cursor:     cursor,
		collection: collection,
	}, nil
}

// HasNext checks whether the stream has a record to return,
// fetching the next chunk from the server when the current one is exhausted.
func (s *Stream) HasNext(ctx context.Context) (bool, error) {
	if s.hasNext {
		return true, nil
	}

	if s.done {
		return false, nil
	}

	if !s.cursor.Next(ctx) {
		s.done = true

		if err := ctx.Err(); err != nil {
			return false, err //nolint:wrapcheck // there's no much to wrap here
		}

		if err := s.cursor.Err(); err != nil {
			return false, fmt.Errorf("%w: fetch %q after %d records: %w", ErrSourceUnavailable, s.collection, s.read, err)
		}

		return false, nil
	}

	var document bson.M
	if err := s.cursor.Decode(&document); err != nil {
		return false, fmt.Errorf("decode document of %q: %w", s.collection, err)
	}

	s.next = Normalize(document)
	s.hasNext = true

	return true, nil
}

// Next returns the next record or [ErrEndOfStream] once the stream is exhausted.
func (s *Stream) Next(ctx context.Context) (schema.Record, error) {
	hasNext, err := s.HasNext(ctx)
	if err != nil {
		return nil, err
	}

	if !hasNext {
		return nil, ErrEndOfStream
	}

	record := s.next
	s.next, s.hasNext = nil, false
	s.read++

	return record, nil
}

// Read returns the number of records returned so far.
func (s *Stream) Read() int {
	return s.read
}

// Close releases the server-side cursor.
func (s *Stream) Close(ctx context.Context) error {
	if err := s.cursor.Close(ctx); err != nil {
		return fmt.Errorf("close cursor of %q: %w", s.collection, err)
	}

	return nil
}
