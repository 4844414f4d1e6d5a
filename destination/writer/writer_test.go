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

package writer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit"
	"github.com/matryer/is"
	"github.com/minormending/neo4j-galaxy-store/destination/writer"
	"github.com/minormending/neo4j-galaxy-store/destination/writer/mock"
	"github.com/minormending/neo4j-galaxy-store/destination/writer/writertest"
	"github.com/minormending/neo4j-galaxy-store/schema"
	"go.uber.org/mock/gomock"
)

var errTest = errors.New("test error")

// galaxy returns the galaxy entities keyed by label.
func galaxy() map[string]schema.Entity {
	entities := make(map[string]schema.Entity)
	for _, entity := range schema.Galaxy(schema.BatchSizes{Default: 3, App: 2}) {
		entities[entity.Label] = entity
	}

	return entities
}

func newGraph() *writertest.Graph {
	return writertest.NewGraph(schema.Galaxy(schema.BatchSizes{Default: 3, App: 2})...)
}

// categories generates n category records with sequential ids.
func categories(n int) []schema.Record {
	records := make([]schema.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, schema.Record{
			"_id":  fmt.Sprintf("cat%d", i),
			"name": gofakeit.Company(),
		})
	}

	return records
}

func affected(n int) []map[string]any {
	return []map[string]any{{"affected": int64(n)}}
}

type batchObservation struct {
	entity   string
	affected int
	err      error
}

type recordingObserver struct {
	mu           sync.Mutex
	observations []batchObservation
}

func (o *recordingObserver) ObserveBatch(entity string, affected int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.observations = append(o.observations, batchObservation{entity: entity, affected: affected, err: err})
}

func TestWriter_Upsert_batches(t *testing.T) {
	t.Parallel()

	for _, pipeline := range []bool{false, true} {
		t.Run(fmt.Sprintf("pipeline_%t", pipeline), func(t *testing.T) {
			t.Parallel()

			is := is.New(t)

			graph := newGraph()
			w := writer.New(writer.Params{Executor: graph, Pipeline: pipeline})

			result, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], writertest.NewRecords(categories(7)...))
			is.NoErr(err)
			is.Equal(result, writer.Result{Nodes: 7, Records: 7, Batches: 3})
			is.Equal(graph.Nodes(schema.LabelCategory), 7)

			statements := graph.Statements()
			is.Equal(len(statements), 3)

			// batches are written in source order
			for i, size := range []int{3, 3, 1} {
				rows, ok := statements[i].Params["rows"].([]map[string]any)
				is.True(ok)
				is.Equal(len(rows), size)
				is.Equal(rows[0]["key"], fmt.Sprintf("cat%d", i*3))
			}
		})
	}
}

func TestWriter_Upsert_empty(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	ctrl := gomock.NewController(t)

	// no statement is expected to be executed
	executor := mock.NewMockExecutor(ctrl)

	w := writer.New(writer.Params{Executor: executor})

	result, err := w.Upsert(context.Background(), galaxy()[schema.LabelApp], writertest.NewRecords())
	is.NoErr(err)
	is.Equal(result, writer.Result{})
}

func TestWriter_Upsert_invalidEntity(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	ctrl := gomock.NewController(t)
	executor := mock.NewMockExecutor(ctrl)

	w := writer.New(writer.Params{Executor: executor})

	entity := schema.Entity{Node: schema.Node{Label: "Category"}, Collection: "categories", BatchSize: 10}

	_, err := w.Upsert(context.Background(), entity, writertest.NewRecords(categories(1)...))
	is.True(err != nil)
}

func TestWriter_Upsert_missingMergeKey(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	graph := newGraph()
	w := writer.New(writer.Params{Executor: graph})

	records := categories(5)
	delete(records[4], "_id")

	result, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], writertest.NewRecords(records...))
	is.True(errors.Is(err, writer.ErrMissingMergeKey))

	var missing *writer.MissingMergeKeyError
	is.True(errors.As(err, &missing))
	is.Equal(missing.Batch, 1)
	is.Equal(missing.Record, 1)

	// the first batch stays committed, no record of the second one is written
	is.Equal(result, writer.Result{Nodes: 3, Records: 3, Batches: 1})
	is.Equal(graph.Nodes(schema.LabelCategory), 3)

	_, ok := graph.Node(schema.LabelCategory, "cat3")
	is.True(!ok)
}

func TestWriter_Upsert_sinkRejected(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	ctrl := gomock.NewController(t)
	ctx := context.Background()

	executor := mock.NewMockExecutor(ctrl)
	gomock.InOrder(
		executor.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(affected(3), nil),
		executor.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, errTest),
	)

	observer := &recordingObserver{}
	w := writer.New(writer.Params{Executor: executor, Observer: observer})

	result, err := w.Upsert(ctx, galaxy()[schema.LabelCategory], writertest.NewRecords(categories(8)...))
	is.True(errors.Is(err, writer.ErrSinkRejected))
	is.True(errors.Is(err, errTest))

	var rejected *writer.SinkRejectedError
	is.True(errors.As(err, &rejected))
	is.Equal(rejected.Entity, schema.LabelCategory)
	is.Equal(rejected.Batch, 1)

	is.Equal(result, writer.Result{Nodes: 3, Records: 3, Batches: 1})

	is.Equal(len(observer.observations), 2)
	is.Equal(observer.observations[0], batchObservation{entity: schema.LabelCategory, affected: 3})
	is.True(errors.Is(observer.observations[1].err, writer.ErrSinkRejected))
}

func TestWriter_Upsert_sinkRejectedPipelined(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	graph := newGraph()
	graph.Reject = func(statement writer.Statement) error {
		rows, _ := statement.Params["rows"].([]map[string]any)
		if rows[0]["key"] == "cat3" {
			return errTest
		}

		return nil
	}

	w := writer.New(writer.Params{Executor: graph, Pipeline: true})

	result, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], writertest.NewRecords(categories(9)...))
	is.True(errors.Is(err, writer.ErrSinkRejected))
	is.True(errors.Is(err, errTest))

	// the rejected batch is atomic, the next one is never written
	is.Equal(result.Batches, 1)
	is.Equal(graph.Nodes(schema.LabelCategory), 3)
}

func TestWriter_Upsert_readError(t *testing.T) {
	t.Parallel()

	for _, pipeline := range []bool{false, true} {
		t.Run(fmt.Sprintf("pipeline_%t", pipeline), func(t *testing.T) {
			t.Parallel()

			is := is.New(t)

			graph := newGraph()
			w := writer.New(writer.Params{Executor: graph, Pipeline: pipeline})

			records := writertest.NewRecords(categories(8)...)
			records.FailAfter = 4
			records.Err = errTest

			result, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], records)
			is.True(errors.Is(err, errTest))

			// a partial batch is never written
			is.Equal(result, writer.Result{Nodes: 3, Records: 3, Batches: 1})
			is.Equal(graph.Nodes(schema.LabelCategory), 3)
		})
	}
}

func TestWriter_Upsert_readErrorDuringWrite(t *testing.T) {
	t.Parallel()

	for _, pipeline := range []bool{false, true} {
		t.Run(fmt.Sprintf("pipeline_%t", pipeline), func(t *testing.T) {
			t.Parallel()

			is := is.New(t)

			// the next read fails while the first batch is still being written
			graph := newGraph()
			graph.Latency = 50 * time.Millisecond

			observer := &recordingObserver{}
			w := writer.New(writer.Params{Executor: graph, Observer: observer, Pipeline: pipeline})

			records := writertest.NewRecords(categories(5)...)
			records.FailAfter = 3
			records.Err = errTest

			result, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], records)
			is.True(errors.Is(err, errTest))
			is.True(!errors.Is(err, writer.ErrSinkRejected))

			// every record of the first batch was read, so it is committed
			is.Equal(result, writer.Result{Nodes: 3, Records: 3, Batches: 1})
			is.Equal(graph.Nodes(schema.LabelCategory), 3)
			is.Equal(observer.observations, []batchObservation{{entity: schema.LabelCategory, affected: 3}})
		})
	}
}

func TestWriter_Upsert_canceled(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	ctrl := gomock.NewController(t)
	executor := mock.NewMockExecutor(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := writer.New(writer.Params{Executor: executor})

	_, err := w.Upsert(ctx, galaxy()[schema.LabelCategory], writertest.NewRecords(categories(2)...))
	is.True(errors.Is(err, context.Canceled))
}

func TestWriter_Upsert_idempotent(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	graph := newGraph()
	w := writer.New(writer.Params{Executor: graph})
	ctx := context.Background()
	entity := galaxy()[schema.LabelCategory]

	records := categories(5)

	first, err := w.Upsert(ctx, entity, writertest.NewRecords(records...))
	is.NoErr(err)

	second, err := w.Upsert(ctx, entity, writertest.NewRecords(records...))
	is.NoErr(err)

	is.Equal(first, second)
	is.Equal(graph.Nodes(schema.LabelCategory), 5)

	node, ok := graph.Node(schema.LabelCategory, "cat2")
	is.True(ok)
	is.Equal(node, map[string]any{"_id": "cat2", "name": records[2]["name"]})
}

func TestWriter_Upsert_lastWriteWins(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	graph := newGraph()
	w := writer.New(writer.Params{Executor: graph})

	records := []schema.Record{
		{"_id": "cat1", "name": "Games"},
		{"_id": "cat2", "name": "Tools"},
		{"_id": "cat1", "name": "Puzzle"},
		{"_id": "cat1", "name": "Arcade"},
	}

	result, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], writertest.NewRecords(records...))
	is.NoErr(err)

	// the node count is summed over batches, cat1 is touched by both of them
	is.Equal(result, writer.Result{Nodes: 3, Records: 4, Batches: 2})
	is.Equal(graph.Nodes(schema.LabelCategory), 2)

	node, ok := graph.Node(schema.LabelCategory, "cat1")
	is.True(ok)
	is.Equal(node["name"], "Arcade")
}

func TestWriter_Upsert_absentFieldRemovesProperty(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	graph := newGraph()
	w := writer.New(writer.Params{Executor: graph})
	ctx := context.Background()
	entity := galaxy()[schema.LabelCategory]

	_, err := w.Upsert(ctx, entity, writertest.NewRecords(
		schema.Record{"_id": "cat1", "name": "Games", "icon": "games.png", "featured": true},
	))
	is.NoErr(err)

	_, err = w.Upsert(ctx, entity, writertest.NewRecords(
		schema.Record{"_id": "cat1", "name": "Arcade"},
		schema.Record{"_id": "cat2", "icon": "tools.png"},
	))
	is.NoErr(err)

	// icon is projected by the batch and binds to null for cat1,
	// featured is outside of the batch and stays untouched
	node, ok := graph.Node(schema.LabelCategory, "cat1")
	is.True(ok)
	is.Equal(node, map[string]any{"_id": "cat1", "name": "Arcade", "featured": true})
}

func TestWriter_Upsert_relationships(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	graph := newGraph()
	entities := galaxy()
	ctx := context.Background()

	w := writer.New(writer.Params{Executor: graph})

	_, err := w.Upsert(ctx, entities[schema.LabelCategory], writertest.NewRecords(
		schema.Record{"_id": "cat1", "name": "Games"},
	))
	is.NoErr(err)

	developer := gofakeit.Company()

	_, err = w.Upsert(ctx, entities[schema.LabelDeveloper], writertest.NewRecords(
		schema.Record{"_id": "dev1", "name": developer, "email": gofakeit.Email()},
	))
	is.NoErr(err)

	apps := []schema.Record{
		{
			"_id":         "app1",
			"name":        gofakeit.Name(),
			"developer":   map[string]any{"name": developer},
			"category_id": "cat1",
			"permissions": []any{"CAMERA", "LOCATION"},
		},
		{
			"_id":         "app2",
			"name":        gofakeit.Name(),
			"developer":   map[string]any{"name": "Unknown Studio"},
			"category_id": "cat404",
			"permissions": []any{"CAMERA"},
		},
		{"_id": "app3", "name": gofakeit.Name()},
	}

	for range 2 {
		result, err := w.Upsert(ctx, entities[schema.LabelApp], writertest.NewRecords(apps...))
		is.NoErr(err)

		// an App without related nodes is still merged
		is.Equal(result, writer.Result{Nodes: 3, Records: 3, RelationshipRecords: 2, Batches: 2})
	}

	is.Equal(graph.Nodes(schema.LabelApp), 3)
	is.Equal(graph.Nodes(schema.LabelPermission), 2)

	// related nodes of foreign keys and sub-documents are matched, never created
	is.Equal(graph.Nodes(schema.LabelDeveloper), 1)
	is.Equal(graph.Nodes(schema.LabelCategory), 1)

	// merging the batches twice does not duplicate edges
	is.Equal(graph.Edges(schema.RelationshipOwns), 1)
	is.Equal(graph.Edges(schema.RelationshipIn), 1)
	is.Equal(graph.Edges(schema.RelationshipRequires), 3)

	is.True(graph.HasEdge(schema.RelationshipOwns, schema.LabelDeveloper, developer, schema.LabelApp, "app1"))
	is.True(graph.HasEdge(schema.RelationshipIn, schema.LabelApp, "app1", schema.LabelCategory, "cat1"))
	is.True(graph.HasEdge(schema.RelationshipRequires, schema.LabelApp, "app2", schema.LabelPermission, "CAMERA"))

	// payload fields are not stored as properties
	app, ok := graph.Node(schema.LabelApp, "app1")
	is.True(ok)
	is.Equal(app, map[string]any{"_id": "app1", "name": apps[0]["name"]})
}

func TestWriter_Upsert_observer(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	observer := &recordingObserver{}
	w := writer.New(writer.Params{Executor: newGraph(), Observer: observer, Pipeline: true})

	_, err := w.Upsert(context.Background(), galaxy()[schema.LabelCategory], writertest.NewRecords(categories(4)...))
	is.NoErr(err)

	is.Equal(observer.observations, []batchObservation{
		{entity: schema.LabelCategory, affected: 3},
		{entity: schema.LabelCategory, affected: 1},
	})
}

func BenchmarkWriter_Upsert(b *testing.B) {
	entity := galaxy()[schema.LabelCategory]
	records := categories(1000)
	w := writer.New(writer.Params{Executor: newGraph()})

	for i := 0; i < b.N; i++ {
		if _, err := w.Upsert(context.Background(), entity, writertest.NewRecords(records...)); err != nil {
			b.Fatal(err)
		}
	}
}
