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

	"github.com/minormending/neo4j-galaxy-store/schema"
	"github.com/mitchellh/mapstructure"
)

const (
	// Cypher clauses of the relationship stage, appended to the entity's upsert statement.
	// Every relationship runs in a unit subquery, so a row without a related node
	// is not filtered out of the outer query and still counts as a touched node.
	//
	// matchRelatedTemplate never creates the related node.
	matchRelatedTemplate = `WITH %[1]s, %[2]s
CALL {
  WITH %[1]s, %[2]s
  MATCH (%[3]s:%[4]s {%[5]s: %[6]s})
  MERGE %[7]s
}`
	// mergeRelatedTemplate creates every related node that does not exist yet.
	mergeRelatedTemplate = `WITH %[1]s, %[2]s
CALL {
  WITH %[1]s, %[2]s
  UNWIND %[6]s AS value
  MERGE (%[3]s:%[4]s {%[5]s: value})
  MERGE %[7]s
}`
	outgoingEdgeTemplate = "(%s)-[:%s]->(%s)"
	incomingEdgeTemplate = "(%s)<-[:%s]-(%s)"

	relatedAliasPrefix = "r"
	rowRelsPrefix      = rowAlias + ".rels."
)

// relationshipClause renders the clause merging the i-th relationship of an entity.
func relationshipClause(i int, relationship schema.Relationship) string {
	relatedAlias := fmt.Sprintf("%s%d", relatedAliasPrefix, i)
	edgeType := quoteIdentifier(relationship.Type)

	edge := fmt.Sprintf(outgoingEdgeTemplate, nodeAlias, edgeType, relatedAlias)
	if relationship.Direction == schema.Incoming {
		edge = fmt.Sprintf(incomingEdgeTemplate, nodeAlias, edgeType, relatedAlias)
	}

	template := matchRelatedTemplate
	if relationship.Kind == schema.KindCollection {
		template = mergeRelatedTemplate
	}

	return fmt.Sprintf(template,
		nodeAlias, rowAlias,
		relatedAlias, quoteIdentifier(relationship.Target.Label), quoteIdentifier(relationship.Target.MergeKey),
		rowRelsPrefix+quoteIdentifier(relationship.Type),
		edge,
	)
}

// relationshipPayload extracts the value bound for a relationship from a record:
// the related merge key for foreign keys and sub-documents, the list of related merge keys for collections.
// The returned flag reports whether the record references any related node.
func relationshipPayload(relationship schema.Relationship, record schema.Record) (any, bool, error) {
	raw := record[relationship.Field]

	switch relationship.Kind {
	case schema.KindForeignKey:
		if !isScalar(raw) {
			return nil, false, fmt.Errorf("%w: %q must be a scalar, got %T", ErrInvalidRelationshipPayload, relationship.Field, raw)
		}

		return raw, raw != nil, nil

	case schema.KindCollection:
		values, err := collectionValues(relationship.Field, raw)
		if err != nil {
			return nil, false, err
		}

		return values, len(values) > 0, nil

	case schema.KindSubDocument:
		if raw == nil {
			return nil, false, nil
		}

		var document map[string]any
		if err := mapstructure.Decode(raw, &document); err != nil {
			return nil, false, fmt.Errorf("%w: decode %q: %w", ErrInvalidRelationshipPayload, relationship.Field, err)
		}

		key := document[relationship.KeyField]
		if !isScalar(key) {
			return nil, false, fmt.Errorf("%w: %q must be a scalar, got %T",
				ErrInvalidRelationshipPayload, relationship.Field+"."+relationship.KeyField, key)
		}

		return key, key != nil, nil

	default:
		// this shouldn't happen as we validate the entities this value comes from
		return nil, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidRelationshipPayload, relationship.Kind)
	}
}

// collectionValues returns the non-nil scalar values of an embedded array.
// A single scalar is treated as a one-element array.
func collectionValues(field string, raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return []any{}, nil
	case []any:
		values := make([]any, 0, len(v))
		for _, value := range v {
			if value == nil {
				continue
			}

			if !isScalar(value) {
				return nil, fmt.Errorf("%w: %q must hold scalars, got %T", ErrInvalidRelationshipPayload, field, value)
			}

			values = append(values, value)
		}

		return values, nil
	case []string:
		values := make([]any, 0, len(v))
		for _, value := range v {
			values = append(values, value)
		}

		return values, nil
	default:
		if !isScalar(raw) {
			return nil, fmt.Errorf("%w: %q must be an array, got %T", ErrInvalidRelationshipPayload, field, raw)
		}

		return []any{raw}, nil
	}
}

// describeRelationship is used in logs, e.g.: "(App)-[IN]->(Category)".
func describeRelationship(owner string, relationship schema.Relationship) string {
	if relationship.Direction == schema.Incoming {
		return fmt.Sprintf("(%s)-[%s]->(%s)", relationship.Target.Label, relationship.Type, owner)
	}

	return fmt.Sprintf("(%s)-[%s]->(%s)", owner, relationship.Type, relationship.Target.Label)
}
