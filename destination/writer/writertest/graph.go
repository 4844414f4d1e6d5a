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

// Package writertest provides an in-memory graph sink for testing code built on the writer package.
package writertest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/minormending/neo4j-galaxy-store/destination/writer"
	"github.com/minormending/neo4j-galaxy-store/schema"
)

const (
	constraintQueryPrefix = "CREATE CONSTRAINT"
	subqueryOpening       = "CALL {"
	ownerAlias            = "n"

	identifier = "`((?:[^`]|``)+)`"
)

var (
	mergeLabelPattern = regexp.MustCompile("(?m)^MERGE \\(n:" + identifier)
	assignmentPattern = regexp.MustCompile("(?:SET |, )n\\." + identifier + " = ")

	// related node clauses bound to a row.rels path, followed by the edge they merge
	matchRelatedPattern = regexp.MustCompile(
		`MATCH \((\w+):` + identifier + ` \{` + identifier + `: row\.rels\.` + identifier + `\}\)\s+MERGE ([^\n]+)`)
	mergeRelatedPattern = regexp.MustCompile(
		`UNWIND row\.rels\.` + identifier + ` AS value\s+MERGE \((\w+):` + identifier + ` \{` + identifier +
			`: value\}\)\s+MERGE ([^\n]+)`)
	edgePattern = regexp.MustCompile(`^\((\w+)\)(<?)-\[:` + identifier + `\]-(>?)\((\w+)\)$`)

	errUnknownStatement = errors.New("unknown statement")
	errUnknownEntity    = errors.New("unknown entity")
	errInvalidRows      = errors.New("invalid rows parameter")
	errInvalidClause    = errors.New("invalid relationship clause")
)

type nodeID struct {
	label string
	key   string
}

type edgeID struct {
	edgeType string
	from     nodeID
	to       nodeID
}

// relatedClause is a relationship subquery of an upsert statement.
type relatedClause struct {
	// path is the key of the row's rels map holding the related merge keys.
	path     string
	alias    string
	label    string
	mergeKey string
	// create is set when the related nodes are merged rather than matched.
	create   bool
	edgeType string
	// from and to are the node aliases of the edge endpoints.
	from string
	to   string
}

// Graph is an in-memory graph sink applying the writer's statements with Neo4j's merge semantics.
// It knows the entities it receives statements for, and recognizes statements by their merge label.
// Edges are taken from the relationship subqueries of the statement text,
// so a wrong label, direction or row path of a rendered clause shows in the graph.
type Graph struct {
	// Reject, when set, is called before a statement is applied.
	// A non-nil error fails the statement without applying any of it.
	Reject func(statement writer.Statement) error
	// Latency, when positive, delays every statement.
	// A statement whose context is done before the delay ends fails with the context error.
	Latency time.Duration

	mu          sync.Mutex
	entities    map[string]schema.Entity
	nodes       map[nodeID]map[string]any
	edges       map[edgeID]struct{}
	statements  []writer.Statement
	constraints []string
}

// NewGraph creates an empty [Graph] for the entities.
func NewGraph(entities ...schema.Entity) *Graph {
	g := &Graph{
		entities: make(map[string]schema.Entity, len(entities)),
		nodes:    make(map[nodeID]map[string]any),
		edges:    make(map[edgeID]struct{}),
	}

	for _, entity := range entities {
		g.entities[entity.Label] = entity
	}

	return g
}

// Execute implements [writer.Executor].
func (g *Graph) Execute(ctx context.Context, statement writer.Statement) ([]map[string]any, error) {
	if g.Latency > 0 {
		timer := time.NewTimer(g.Latency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // the sink reports the context error as is
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Reject != nil {
		if err := g.Reject(statement); err != nil {
			return nil, err
		}
	}

	if strings.HasPrefix(statement.Query, constraintQueryPrefix) {
		g.constraints = append(g.constraints, statement.Query)

		return nil, nil
	}

	match := mergeLabelPattern.FindStringSubmatch(statement.Query)
	if match == nil {
		return nil, fmt.Errorf("%w: %q", errUnknownStatement, statement.Query)
	}

	entity, ok := g.entities[unquote(match[1])]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownEntity, match[1])
	}

	rows, ok := statement.Params["rows"].([]map[string]any)
	if !ok {
		return nil, errInvalidRows
	}

	var fields []string
	for _, assignment := range assignmentPattern.FindAllStringSubmatch(statement.Query, -1) {
		fields = append(fields, unquote(assignment[1]))
	}

	clauses, err := parseRelatedClauses(statement.Query)
	if err != nil {
		return nil, err
	}

	g.statements = append(g.statements, statement)

	touched := make(map[nodeID]struct{}, len(rows))
	for _, row := range rows {
		touched[g.applyRow(entity.Node, fields, clauses, row)] = struct{}{}
	}

	return []map[string]any{{"affected": int64(len(touched))}}, nil
}

func (g *Graph) applyRow(node schema.Node, fields []string, clauses []relatedClause, row map[string]any) nodeID {
	id := g.merge(node.Label, node.MergeKey, row["key"])
	properties := g.nodes[id]

	rowProps, _ := row["props"].(map[string]any)
	for _, field := range fields {
		// setting a property to null removes it
		if value, ok := rowProps[field]; ok && value != nil {
			properties[field] = value
		} else {
			delete(properties, field)
		}
	}

	rels, _ := row["rels"].(map[string]any)
	for _, clause := range clauses {
		payload := rels[clause.path]

		if clause.create {
			values, _ := payload.([]any)
			for _, value := range values {
				g.addEdge(clause, id, g.merge(clause.label, clause.mergeKey, value))
			}

			continue
		}

		if payload == nil {
			continue
		}

		related := nodeID{label: clause.label, key: fmt.Sprint(payload)}
		if _, ok := g.nodes[related]; !ok {
			// the related node is matched, never created
			continue
		}

		g.addEdge(clause, id, related)
	}

	return id
}

func (g *Graph) merge(label, mergeKey string, key any) nodeID {
	id := nodeID{label: label, key: fmt.Sprint(key)}
	if _, ok := g.nodes[id]; !ok {
		g.nodes[id] = map[string]any{mergeKey: key}
	}

	return id
}

func (g *Graph) addEdge(clause relatedClause, owner, related nodeID) {
	aliases := map[string]nodeID{ownerAlias: owner, clause.alias: related}

	g.edges[edgeID{edgeType: clause.edgeType, from: aliases[clause.from], to: aliases[clause.to]}] = struct{}{}
}

// parseRelatedClauses parses every relationship subquery of an upsert statement.
func parseRelatedClauses(query string) ([]relatedClause, error) {
	var clauses []relatedClause

	for _, m := range matchRelatedPattern.FindAllStringSubmatch(query, -1) {
		clause := relatedClause{alias: m[1], label: unquote(m[2]), mergeKey: unquote(m[3]), path: unquote(m[4])}
		if err := clause.parseEdge(m[5]); err != nil {
			return nil, err
		}

		clauses = append(clauses, clause)
	}

	for _, m := range mergeRelatedPattern.FindAllStringSubmatch(query, -1) {
		clause := relatedClause{path: unquote(m[1]), alias: m[2], label: unquote(m[3]), mergeKey: unquote(m[4]), create: true}
		if err := clause.parseEdge(m[5]); err != nil {
			return nil, err
		}

		clauses = append(clauses, clause)
	}

	if subqueries := strings.Count(query, subqueryOpening); subqueries != len(clauses) {
		return nil, fmt.Errorf("%w: parsed %d of %d subqueries", errInvalidClause, len(clauses), subqueries)
	}

	return clauses, nil
}

// parseEdge sets the type and endpoints of the clause from an edge pattern like "(n)-[:`IN`]->(r0)".
func (c *relatedClause) parseEdge(pattern string) error {
	m := edgePattern.FindStringSubmatch(strings.TrimSpace(pattern))
	if m == nil {
		return fmt.Errorf("%w: edge %q", errInvalidClause, pattern)
	}

	left, incoming, outgoing, right := m[1], m[2] != "", m[4] != "", m[5]
	if incoming == outgoing {
		return fmt.Errorf("%w: edge %q has no single direction", errInvalidClause, pattern)
	}

	if !(left == ownerAlias && right == c.alias) && !(left == c.alias && right == ownerAlias) {
		return fmt.Errorf("%w: edge %q does not join %s and %s", errInvalidClause, pattern, ownerAlias, c.alias)
	}

	c.edgeType = unquote(m[3])
	c.from, c.to = left, right
	if incoming {
		c.from, c.to = right, left
	}

	return nil
}

// Node returns a copy of the properties of the node with the label and merge key value.
func (g *Graph) Node(label string, key any) (map[string]any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	properties, ok := g.nodes[nodeID{label: label, key: fmt.Sprint(key)}]
	if !ok {
		return nil, false
	}

	return maps.Clone(properties), true
}

// Nodes returns the number of nodes with the label.
func (g *Graph) Nodes(label string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for id := range g.nodes {
		if id.label == label {
			count++
		}
	}

	return count
}

// Edges returns the number of edges of the type.
func (g *Graph) Edges(edgeType string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for edge := range g.edges {
		if edge.edgeType == edgeType {
			count++
		}
	}

	return count
}

// HasEdge reports whether an edge of the type points from the first node to the second one.
func (g *Graph) HasEdge(edgeType, fromLabel string, fromKey any, toLabel string, toKey any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.edges[edgeID{
		edgeType: edgeType,
		from:     nodeID{label: fromLabel, key: fmt.Sprint(fromKey)},
		to:       nodeID{label: toLabel, key: fmt.Sprint(toKey)},
	}]

	return ok
}

// Statements returns the applied upsert statements in execution order.
func (g *Graph) Statements() []writer.Statement {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]writer.Statement(nil), g.statements...)
}

// Constraints returns the executed constraint queries in execution order.
func (g *Graph) Constraints() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.constraints...)
}

func unquote(identifier string) string {
	return strings.ReplaceAll(identifier, "``", "`")
}
