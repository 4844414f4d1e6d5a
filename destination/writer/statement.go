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
	"fmt"
	"strings"

	"github.com/minormending/neo4j-galaxy-store/schema"
)

const (
	// all Cypher queries used by the [Writer] are listed below in the format of Go fmt.
	constraintQueryTemplate = "CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE"
	unwindClauseTemplate    = "UNWIND $%s AS %s"
	mergeClauseTemplate     = "MERGE (%s:%s {%s: %s.key})"
	setClauseTemplate       = "SET %s"
	returnClauseTemplate    = "RETURN count(DISTINCT %s) AS %s"

	// some helpers for Cypher queries.
	rowsParam        = "rows"
	rowAlias         = "row"
	nodeAlias        = "n"
	affectedField    = "affected"
	constraintSuffix = "_unique"
)

// Statement is a parametrized Cypher statement executed by the graph sink.
type Statement struct {
	Query  string
	Params map[string]any
}

// ConstraintStatement declares the uniqueness of the node's merge key.
// It is a no-op when the constraint already exists.
func ConstraintStatement(node schema.Node) Statement {
	name := strings.ToLower(node.Label) + "_" + node.MergeKey + constraintSuffix

	return Statement{
		Query: fmt.Sprintf(constraintQueryTemplate,
			quoteIdentifier(name), quoteIdentifier(node.Label), quoteIdentifier(node.MergeKey),
		),
	}
}

// upsertStatement builds one statement merging every row of a batch:
// a node keyed by the merge key, the projected SET clause,
// the relationship clauses and the distinct count of touched nodes.
func upsertStatement(entity schema.Entity, fields []string, rows []map[string]any) Statement {
	clauses := []string{
		fmt.Sprintf(unwindClauseTemplate, rowsParam, rowAlias),
		fmt.Sprintf(mergeClauseTemplate,
			nodeAlias, quoteIdentifier(entity.Label), quoteIdentifier(entity.MergeKey), rowAlias,
		),
	}

	if len(fields) > 0 {
		clauses = append(clauses, fmt.Sprintf(setClauseTemplate, AssignmentExpression(nodeAlias, fields)))
	}

	for i, relationship := range entity.Relationships {
		clauses = append(clauses, relationshipClause(i, relationship))
	}

	clauses = append(clauses, fmt.Sprintf(returnClauseTemplate, nodeAlias, affectedField))

	return Statement{
		Query:  strings.Join(clauses, "\n"),
		Params: map[string]any{rowsParam: rows},
	}
}
