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

// Package migration runs the stages that move the document collections into the graph.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/minormending/neo4j-galaxy-store/destination/writer"
	"github.com/minormending/neo4j-galaxy-store/schema"
	"github.com/minormending/neo4j-galaxy-store/source/iterator"
	"github.com/rs/zerolog"
)

// DefaultChunkSize is the number of documents fetched per server round trip
// when [Params] leaves ChunkSize unset.
const DefaultChunkSize = 1000

// Params holds incoming params for the [Migrator].
type Params struct {
	// Finder opens the source collections.
	Finder iterator.Finder
	// Executor runs the statements against the graph sink.
	Executor writer.Executor
	// Entities are the stages, run in the given order.
	Entities []schema.Entity
	// Migrated lists the labels whose nodes were migrated by an earlier run.
	// Stages depending on them may run without their stage.
	Migrated []string
	// ChunkSize is the fetch chunk size of the source streams.
	ChunkSize int
	// Pipeline enables reading the next batch while the current one is written.
	Pipeline bool
	// Observer is optional, see [Metrics].
	Observer writer.Observer
}

// Migrator runs constraint setup and the entity stages in dependency order.
type Migrator struct {
	finder    iterator.Finder
	executor  writer.Executor
	writer    *writer.Writer
	entities  []schema.Entity
	migrated  []string
	chunkSize int
}

// New validates the stage plan and creates a new instance of the [Migrator].
// No I/O is performed.
func New(params Params) (*Migrator, error) {
	switch {
	case params.Finder == nil:
		return nil, errNoSource
	case params.Executor == nil:
		return nil, errNoSink
	case params.ChunkSize < 0:
		return nil, errInvalidChunkSize
	}

	if err := ValidatePlan(params.Entities, params.Migrated); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}

	chunkSize := params.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	return &Migrator{
		finder:   params.Finder,
		executor: params.Executor,
		writer: writer.New(writer.Params{
			Executor: params.Executor,
			Observer: params.Observer,
			Pipeline: params.Pipeline,
		}),
		entities:  params.Entities,
		migrated:  params.Migrated,
		chunkSize: chunkSize,
	}, nil
}

// Run declares the uniqueness constraints, then runs every stage in order.
// It stops at the first failing stage and returns the report of the work committed so far
// together with the error. Committed batches are never rolled back.
func (m *Migrator) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := newReport()

	err := m.run(ctx, &report)
	report.Duration = time.Since(start)

	return report, err
}

func (m *Migrator) run(ctx context.Context, report *Report) error {
	logger := zerolog.Ctx(ctx)

	if err := m.ensureConstraints(ctx); err != nil {
		return err
	}

	present := make(map[string]struct{}, len(m.entities)+len(m.migrated))
	for _, label := range m.migrated {
		present[label] = struct{}{}
	}

	for _, entity := range m.entities {
		if err := checkDependencies(entity, present); err != nil {
			return err
		}

		start := time.Now()

		result, err := m.runStage(ctx, entity)
		report.add(entity.Label, result)

		if err != nil {
			return fmt.Errorf("migrate %s: %w", entity.Label, err)
		}

		present[entity.Label] = struct{}{}
		report.Completed = append(report.Completed, entity.Label)

		logger.Info().
			Str("entity", entity.Label).
			Int("nodes", result.Nodes).
			Int("records", result.Records).
			Int("relationshipRecords", result.RelationshipRecords).
			Int("batches", result.Batches).
			Dur("elapsed", time.Since(start)).
			Msg("stage completed")
	}

	return nil
}

// ensureConstraints declares the merge key uniqueness of every node type the stages merge.
func (m *Migrator) ensureConstraints(ctx context.Context) error {
	for _, node := range constraintNodes(m.entities) {
		if _, err := m.executor.Execute(ctx, writer.ConstraintStatement(node)); err != nil {
			return fmt.Errorf("create %s constraint: %w", node.Label, err)
		}

		zerolog.Ctx(ctx).Debug().
			Str("label", node.Label).
			Str("mergeKey", node.MergeKey).
			Msg("ensured uniqueness constraint")
	}

	return nil
}

// runStage streams the entity's collection into the writer.
// The stream is closed whatever the outcome.
func (m *Migrator) runStage(ctx context.Context, entity schema.Entity) (writer.Result, error) {
	stream, err := iterator.New(ctx, m.finder, entity.Collection, m.chunkSize)
	if err != nil {
		return writer.Result{}, fmt.Errorf("open stream: %w", err)
	}

	defer func() {
		// the cursor must be released even when the run was canceled
		if err := stream.Close(context.WithoutCancel(ctx)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("collection", entity.Collection).Msg("failed to close stream")
		}
	}()

	result, err := m.writer.Upsert(ctx, entity, stream)
	if err != nil {
		return result, fmt.Errorf("upsert %s after %d records read: %w", entity.Collection, stream.Read(), err)
	}

	return result, nil
}
