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

package migration

import (
	"time"

	"github.com/minormending/neo4j-galaxy-store/destination/writer"
	"github.com/rs/zerolog"
)

// Report holds the counts of a migration run.
// A failed run returns the counts of the work committed before the failure.
type Report struct {
	// Nodes is the number of nodes merged per entity type.
	Nodes map[string]int
	// RelationshipRecords is the number of records that referenced at least one related node.
	RelationshipRecords int
	// Records is the number of records written.
	Records int
	// Batches is the number of executed batch statements.
	Batches int
	// Completed lists the stages that finished, in execution order.
	Completed []string
	Duration  time.Duration
}

func newReport() Report {
	return Report{Nodes: make(map[string]int)}
}

// add accumulates the result of an entity's stage, complete or not.
func (r *Report) add(entity string, result writer.Result) {
	r.Nodes[entity] += result.Nodes
	r.RelationshipRecords += result.RelationshipRecords
	r.Records += result.Records
	r.Batches += result.Batches
}

// TotalNodes returns the number of nodes merged over all entity types.
func (r Report) TotalNodes() int {
	total := 0
	for _, nodes := range r.Nodes {
		total += nodes
	}

	return total
}

// MarshalZerologObject implements [zerolog.LogObjectMarshaler].
func (r Report) MarshalZerologObject(e *zerolog.Event) {
	nodes := zerolog.Dict()
	for entity, count := range r.Nodes {
		nodes.Int(entity, count)
	}

	e.Dict("nodes", nodes).
		Int("relationshipRecords", r.RelationshipRecords).
		Int("records", r.Records).
		Int("batches", r.Batches).
		Strs("completed", r.Completed).
		Dur("duration", r.Duration)
}
