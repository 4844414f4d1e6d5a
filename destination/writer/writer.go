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

//go:generate mockgen -package mock -destination mock/writer.go . Executor,Iterator

// Package writer implements the batched, idempotent upsert of records into the graph sink.
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/minormending/neo4j-galaxy-store/schema"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Executor executes a statement against the graph sink and returns its result rows.
// Each call is a single atomic round trip.
type Executor interface {
	Execute(ctx context.Context, statement Statement) ([]map[string]any, error)
}

// Iterator is the lazy sequence of records the [Writer] consumes.
type Iterator interface {
	HasNext(ctx context.Context) (bool, error)
	Next(ctx context.Context) (schema.Record, error)
}

// Observer is notified about every executed batch.
type Observer interface {
	ObserveBatch(entity string, affected int, elapsed time.Duration, err error)
}

// Result holds the counts of an entity's upsert.
type Result struct {
	// Nodes is the number of distinct nodes merged, summed over batches.
	Nodes int
	// Records is the number of records written.
	Records int
	// RelationshipRecords is the number of records referencing at least one related node.
	RelationshipRecords int
	// Batches is the number of executed batch statements.
	Batches int
}

// Writer merges records into the graph sink, one statement per batch.
type Writer struct {
	executor Executor
	observer Observer
	pipeline bool
}

// Params holds incoming params for the [Writer].
type Params struct {
	Executor Executor
	// Observer is optional.
	Observer Observer
	// Pipeline enables reading the next batch while the current one is written.
	Pipeline bool
}

// countRow is the single row returned by a batch statement.
type countRow struct {
	Affected int `mapstructure:"affected"`
}

// New creates a new instance of the [Writer].
func New(params Params) *Writer {
	return &Writer{
		executor: params.Executor,
		observer: params.Observer,
		pipeline: params.Pipeline,
	}
}

// Upsert partitions the records into batches of the entity's batch size and merges every batch,
// together with the entity's relationships, in a single statement.
// On failure the returned [Result] holds the counts of the batches committed so far.
func (w *Writer) Upsert(ctx context.Context, entity schema.Entity, records Iterator) (Result, error) {
	if err := entity.Validate(); err != nil {
		return Result{}, fmt.Errorf("validate entity: %w", err)
	}

	logger := zerolog.Ctx(ctx).With().Str("entity", entity.Label).Logger()

	for _, relationship := range entity.Relationships {
		logger.Debug().
			Str("relationship", describeRelationship(entity.Label, relationship)).
			Str("field", relationship.Field).
			Msg("merging relationship with entity batches")
	}

	ctx = logger.WithContext(ctx)

	if w.pipeline {
		return w.upsertPipelined(ctx, entity, records)
	}

	var result Result
	for index := 0; ; index++ {
		batch, err := readBatch(ctx, records, entity.BatchSize)
		if err != nil {
			return result, fmt.Errorf("read %s batch %d: %w", entity.Label, index, err)
		}

		if len(batch) == 0 {
			return result, nil
		}

		if err := w.writeBatch(ctx, entity, index, batch, &result); err != nil {
			return result, err
		}
	}
}

// upsertPipelined reads batch N+1 while batch N is written.
// Batches are still written one at a time and in source order,
// so the last record with a given merge key wins.
// A read failure stops the reads only: the batches read before it are still written,
// so both modes commit the same batches.
func (w *Writer) upsertPipelined(ctx context.Context, entity schema.Entity, records Iterator) (Result, error) {
	var (
		result  Result
		batches = make(chan []schema.Record, 1)
	)

	// readCtx stops the reads when a write fails.
	// Writes run on ctx, so a read failure never cancels them.
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	var group errgroup.Group

	group.Go(func() error {
		defer close(batches)

		for index := 0; ; index++ {
			batch, err := readBatch(readCtx, records, entity.BatchSize)
			if err != nil {
				return fmt.Errorf("read %s batch %d: %w", entity.Label, index, err)
			}

			if len(batch) == 0 {
				return nil
			}

			select {
			case batches <- batch:
			case <-readCtx.Done():
				return readCtx.Err() //nolint:wrapcheck // there's no much to wrap here
			}
		}
	})

	writeErr := w.writeBatches(ctx, entity, batches, &result)
	if writeErr != nil {
		cancelRead()
	}

	readErr := group.Wait()

	if writeErr != nil {
		return result, writeErr
	}

	if readErr != nil {
		return result, readErr //nolint:wrapcheck // wrapped by the reading goroutine
	}

	return result, nil
}

// writeBatches writes the batches in the order they are received until the channel is closed.
func (w *Writer) writeBatches(
	ctx context.Context,
	entity schema.Entity,
	batches <-chan []schema.Record,
	result *Result,
) error {
	index := 0
	for batch := range batches {
		if err := w.writeBatch(ctx, entity, index, batch, result); err != nil {
			return err
		}

		index++
	}

	return nil
}

// writeBatch merges a single non-empty batch and adds its counts to the result.
func (w *Writer) writeBatch(
	ctx context.Context,
	entity schema.Entity,
	index int,
	batch []schema.Record,
	result *Result,
) error {
	fields := ProjectFields(batch, entity.ExcludedFields())

	rows, err := buildRows(entity, index, batch, fields)
	if err != nil {
		w.observe(entity.Label, 0, 0, err)

		return err
	}

	statement := upsertStatement(entity, fields, rows.rows)

	start := time.Now()

	resultRows, err := w.executor.Execute(ctx, statement)
	if err != nil {
		err = &SinkRejectedError{Entity: entity.Label, Batch: index, Err: err}
		w.observe(entity.Label, 0, time.Since(start), err)

		return err
	}

	affected, err := affectedCount(resultRows)
	if err != nil {
		err = &SinkRejectedError{Entity: entity.Label, Batch: index, Err: err}
		w.observe(entity.Label, 0, time.Since(start), err)

		return err
	}

	elapsed := time.Since(start)
	w.observe(entity.Label, affected, elapsed, nil)

	result.Nodes += affected
	result.Records += len(batch)
	result.RelationshipRecords += rows.relationshipRecords
	result.Batches++

	zerolog.Ctx(ctx).Debug().
		Int("batch", index).
		Int("records", len(batch)).
		Int("fields", len(fields)).
		Int("affected", affected).
		Dur("elapsed", elapsed).
		Msg("merged batch")

	return nil
}

func (w *Writer) observe(entity string, affected int, elapsed time.Duration, err error) {
	if w.observer != nil {
		w.observer.ObserveBatch(entity, affected, elapsed, err)
	}
}

// readBatch reads up to size records, fewer only when the iterator is exhausted.
func readBatch(ctx context.Context, records Iterator, size int) ([]schema.Record, error) {
	batch := make([]schema.Record, 0, size)
	for len(batch) < size {
		hasNext, err := records.HasNext(ctx)
		if err != nil {
			return nil, fmt.Errorf("has next: %w", err)
		}

		if !hasNext {
			break
		}

		record, err := records.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("get next record: %w", err)
		}

		batch = append(batch, record)
	}

	return batch, nil
}

// affectedCount extracts the distinct node count from the rows of a batch statement.
func affectedCount(rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, errNoCountRow
	}

	var row countRow
	if err := mapstructure.Decode(rows[0], &row); err != nil {
		return 0, fmt.Errorf("decode count row: %w", err)
	}

	return row.Affected, nil
}
