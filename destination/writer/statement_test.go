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

package writer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/minormending/neo4j-galaxy-store/schema"
)

func galaxyEntity(label string) schema.Entity {
	for _, entity := range schema.Galaxy(schema.BatchSizes{Default: 3, App: 2}) {
		if entity.Label == label {
			return entity
		}
	}

	panic("unknown label " + label)
}

func TestConstraintStatement(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	statement := ConstraintStatement(schema.Node{Label: "App", MergeKey: "_id"})

	is.Equal(statement.Query, "CREATE CONSTRAINT `app__id_unique` IF NOT EXISTS FOR (n:`App`) REQUIRE n.`_id` IS UNIQUE")
	is.Equal(statement.Params, nil)
}

func TestUpsertStatement_entity(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	rows := []map[string]any{{"key": "cat1", "props": map[string]any{"name": "Games"}}}
	statement := upsertStatement(galaxyEntity(schema.LabelCategory), []string{"name"}, rows)

	is.Equal(statement.Query, "UNWIND $rows AS row\n"+
		"MERGE (n:`Category` {`_id`: row.key})\n"+
		"SET n.`name` = row.props.`name`\n"+
		"RETURN count(DISTINCT n) AS affected")
	is.Equal(statement.Params, map[string]any{"rows": rows})
}

func TestUpsertStatement_noFields(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	statement := upsertStatement(galaxyEntity(schema.LabelPermission), nil, nil)

	is.Equal(statement.Query, "UNWIND $rows AS row\n"+
		"MERGE (n:`Permission` {`name`: row.key})\n"+
		"RETURN count(DISTINCT n) AS affected")
}

func TestUpsertStatement_relationships(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	statement := upsertStatement(galaxyEntity(schema.LabelApp), []string{"name", "rating"}, nil)

	is.Equal(statement.Query, `UNWIND $rows AS row
MERGE (n:`+"`App`"+` {`+"`_id`"+`: row.key})
SET n.`+"`name`"+` = row.props.`+"`name`"+`, n.`+"`rating`"+` = row.props.`+"`rating`"+`
WITH n, row
CALL {
  WITH n, row
  MATCH (r0:`+"`Developer`"+` {`+"`name`"+`: row.rels.`+"`OWNS`"+`})
  MERGE (n)<-[:`+"`OWNS`"+`]-(r0)
}
WITH n, row
CALL {
  WITH n, row
  MATCH (r1:`+"`Category`"+` {`+"`_id`"+`: row.rels.`+"`IN`"+`})
  MERGE (n)-[:`+"`IN`"+`]->(r1)
}
WITH n, row
CALL {
  WITH n, row
  UNWIND row.rels.`+"`REQUIRES`"+` AS value
  MERGE (r2:`+"`Permission`"+` {`+"`name`"+`: value})
  MERGE (n)-[:`+"`REQUIRES`"+`]->(r2)
}
RETURN count(DISTINCT n) AS affected`)
}

func TestBuildRows(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	app := galaxyEntity(schema.LabelApp)
	batch := []schema.Record{
		{
			"_id":         "app1",
			"name":        "Galaxy Racer",
			"developer":   map[string]any{"name": "Acme", "email": "hi@acme.io"},
			"category_id": "cat1",
			"permissions": []any{"CAMERA", nil, "LOCATION"},
		},
		{"_id": "app2", "rating": 4.5},
	}

	rows, err := buildRows(app, 0, batch, []string{"name", "rating"})
	is.NoErr(err)
	is.Equal(rows.relationshipRecords, 1)
	is.Equal(rows.rows, []map[string]any{
		{
			"key":   "app1",
			"props": map[string]any{"name": "Galaxy Racer"},
			"rels": map[string]any{
				"OWNS":     "Acme",
				"IN":       "cat1",
				"REQUIRES": []any{"CAMERA", "LOCATION"},
			},
		},
		{
			"key":   "app2",
			"props": map[string]any{"rating": 4.5},
			"rels": map[string]any{
				"OWNS":     nil,
				"IN":       nil,
				"REQUIRES": []any{},
			},
		},
	})
}

func TestBuildRows_missingMergeKey(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	batch := []schema.Record{{"_id": "cat1"}, {"name": "No id"}, {"_id": nil}}

	_, err := buildRows(galaxyEntity(schema.LabelCategory), 4, batch, []string{"name"})
	is.True(errors.Is(err, ErrMissingMergeKey))

	var missing *MissingMergeKeyError
	is.True(errors.As(err, &missing))
	is.Equal(*missing, MissingMergeKeyError{Entity: "Category", MergeKey: "_id", Batch: 4, Record: 1})
}

func TestBuildRows_invalidRelationshipPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record schema.Record
	}{
		{name: "developer_not_a_document", record: schema.Record{"_id": "app1", "developer": "Acme"}},
		{name: "category_not_a_scalar", record: schema.Record{"_id": "app1", "category_id": []any{"cat1"}}},
		{name: "permissions_of_documents", record: schema.Record{"_id": "app1", "permissions": []any{map[string]any{}}}},
		{name: "permissions_document", record: schema.Record{"_id": "app1", "permissions": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			is := is.New(t)

			_, err := buildRows(galaxyEntity(schema.LabelApp), 0, []schema.Record{tt.record}, nil)
			is.True(errors.Is(err, ErrInvalidRelationshipPayload))
		})
	}
}

func TestEncodeProperty(t *testing.T) {
	t.Parallel()

	released := time.Date(2021, time.March, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "string", value: "Galaxy Racer", want: "Galaxy Racer"},
		{name: "integer", value: int32(12), want: int32(12)},
		{name: "unsigned", value: uint64(42), want: uint64(42)},
		{name: "unsigned_array", value: []any{uint(1), uint64(2)}, want: []any{uint(1), uint64(2)}},
		{name: "float", value: 4.5, want: 4.5},
		{name: "time", value: released, want: released},
		{name: "nil", value: nil, want: nil},
		{name: "homogeneous_array", value: []any{"CAMERA", "LOCATION"}, want: []any{"CAMERA", "LOCATION"}},
		{name: "empty_array", value: []any{}, want: []any{}},
		{name: "mixed_array", value: []any{"a", 1}, want: `["a",1]`},
		{name: "array_with_nil", value: []any{"a", nil}, want: `["a",null]`},
		{name: "document", value: map[string]any{"min": 4, "max": 17}, want: `{"max":17,"min":4}`},
		{name: "array_of_documents", value: []any{map[string]any{"url": "a.png"}}, want: `[{"url":"a.png"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			is := is.New(t)

			got, err := encodeProperty(tt.value)
			is.NoErr(err)
			is.Equal(got, tt.want)
		})
	}
}

func TestEncodeProperty_integerOverflow(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	_, err := encodeProperty(uint64(math.MaxInt64) + 1)
	is.True(errors.Is(err, ErrIntegerOverflow))

	encoded, err := encodeProperty(uint64(math.MaxInt64))
	is.NoErr(err)
	is.Equal(encoded, uint64(math.MaxInt64))

	// rejected as a relationship key as well
	is.True(!isScalar(uint64(math.MaxUint64)))
	is.True(isScalar(uintptr(7)))
}

func TestAffectedCount(t *testing.T) {
	t.Parallel()

	is := is.New(t)

	affected, err := affectedCount([]map[string]any{{"affected": int64(7)}})
	is.NoErr(err)
	is.Equal(affected, 7)

	_, err = affectedCount(nil)
	is.True(errors.Is(err, errNoCountRow))
}
