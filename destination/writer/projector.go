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
	"slices"
	"strings"

	"github.com/minormending/neo4j-galaxy-store/schema"
)

const (
	// some helper symbols for Cypher expressions.
	setAssignSign      = " = "
	propertySeparator  = ", "
	identifierQuote    = "`"
	escapedIdentQuote  = "``"
	propertyAccessSign = "."
	// rowPropsPrefix is the row parameter path holding the projected properties.
	rowPropsPrefix = rowAlias + ".props."
)

// ProjectFields returns the union of the field names present across the batch,
// minus the excluded ones. Records with disjoint field sets are fine,
// a record lacking a field contributes nothing for it.
// The result is sorted so the same batch always renders the same statement.
func ProjectFields(batch []schema.Record, excluded map[string]struct{}) []string {
	union := make(map[string]struct{})
	for _, record := range batch {
		for field := range record {
			if _, ok := excluded[field]; ok {
				continue
			}

			union[field] = struct{}{}
		}
	}

	fields := make([]string, 0, len(union))
	for field := range union {
		fields = append(fields, field)
	}

	slices.Sort(fields)

	return fields
}

// AssignmentExpression constructs the body of a Cypher SET clause assigning every field
// of the node from the incoming row, e.g.: "n.`name` = row.props.`name`, n.`rating` = row.props.`rating`".
// The same expression runs whether the node was just created or matched,
// so both paths leave the node in the same state for the same row.
func AssignmentExpression(nodeAlias string, fields []string) string {
	var sb strings.Builder
	for i, field := range fields {
		if i > 0 {
			sb.WriteString(propertySeparator)
		}

		quoted := quoteIdentifier(field)

		sb.WriteString(nodeAlias + propertyAccessSign + quoted + setAssignSign + rowPropsPrefix + quoted)
	}

	return sb.String()
}

// quoteIdentifier wraps a label, type or property name in backticks,
// so names like "_id" or "content rating" are valid Cypher identifiers.
func quoteIdentifier(name string) string {
	return identifierQuote + strings.ReplaceAll(name, identifierQuote, escapedIdentQuote) + identifierQuote
}
