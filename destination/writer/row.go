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
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/minormending/neo4j-galaxy-store/schema"
)

// row parameter fields, see the templates in statement.go and relationship.go.
const (
	rowKeyField   = "key"
	rowPropsField = "props"
	rowRelsField  = "rels"
)

// scalarKind groups the property value types Neo4j stores natively.
// Neo4j lists must be homogeneous, so values are compared by kind.
type scalarKind int

const (
	kindNone scalarKind = iota
	kindBool
	kindString
	kindInteger
	kindFloat
	kindTime
	kindBytes
)

// batchRows holds the row parameters of a batch along with
// the number of records referencing at least one related node.
type batchRows struct {
	rows                []map[string]any
	relationshipRecords int
}

// buildRows validates the merge key of every record and converts the batch into row parameters.
// Any invalid record fails the whole batch, nothing is dropped silently.
func buildRows(entity schema.Entity, batchIndex int, batch []schema.Record, fields []string) (batchRows, error) {
	for i, record := range batch {
		if _, ok := entity.Key(record); !ok {
			return batchRows{}, &MissingMergeKeyError{
				Entity:   entity.Label,
				MergeKey: entity.MergeKey,
				Batch:    batchIndex,
				Record:   i,
			}
		}
	}

	result := batchRows{rows: make([]map[string]any, 0, len(batch))}

	for i, record := range batch {
		key, _ := entity.Key(record)

		props := make(map[string]any, len(fields))
		for _, field := range fields {
			value, ok := record[field]
			if !ok {
				// the field binds to null, which removes the property from a matched node
				continue
			}

			encoded, err := encodeProperty(value)
			if err != nil {
				return batchRows{}, fmt.Errorf("%s batch %d record %d field %q: %w", entity.Label, batchIndex, i, field, err)
			}

			props[field] = encoded
		}

		row := map[string]any{
			rowKeyField:   key,
			rowPropsField: props,
		}

		if len(entity.Relationships) > 0 {
			rels := make(map[string]any, len(entity.Relationships))
			referencesRelated := false

			for _, relationship := range entity.Relationships {
				payload, ok, err := relationshipPayload(relationship, record)
				if err != nil {
					return batchRows{}, fmt.Errorf("%s batch %d record %d relationship %s: %w",
						entity.Label, batchIndex, i, relationship.Type, err)
				}

				rels[relationship.Type] = payload
				referencesRelated = referencesRelated || ok
			}

			row[rowRelsField] = rels

			if referencesRelated {
				result.relationshipRecords++
			}
		}

		result.rows = append(result.rows, row)
	}

	return result, nil
}

// encodeProperty converts a record value into a value Neo4j can store as a property.
// Scalars and homogeneous scalar arrays pass as they are,
// nested objects and mixed arrays are stored as their JSON encoding.
func encodeProperty(value any) (any, error) {
	if unsigned, ok := asUint64(value); ok && unsigned > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d", ErrIntegerOverflow, unsigned)
	}

	switch v := value.(type) {
	case []any:
		if homogeneous(v) {
			return v, nil
		}
	case []string, []int64, []float64, []bool:
		return v, nil
	default:
		if isScalar(value) {
			return value, nil
		}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode property: %w", err)
	}

	return string(encoded), nil
}

// homogeneous reports whether every element of the array is a non-nil scalar of the same kind.
func homogeneous(values []any) bool {
	first := kindNone
	for _, value := range values {
		kind := kindOf(value)
		if kind == kindNone {
			return false
		}

		if first == kindNone {
			first = kind

			continue
		}

		if kind != first {
			return false
		}
	}

	return true
}

// isScalar reports whether the value is nil or a scalar Neo4j stores natively.
func isScalar(value any) bool {
	return value == nil || kindOf(value) != kindNone
}

func kindOf(value any) scalarKind {
	switch value.(type) {
	case bool:
		return kindBool
	case string:
		return kindString
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInteger
	case uint, uint64, uintptr:
		// the sink stores 64-bit signed integers only
		if unsigned, _ := asUint64(value); unsigned <= math.MaxInt64 {
			return kindInteger
		}

		return kindNone
	case float32, float64:
		return kindFloat
	case time.Time:
		return kindTime
	case []byte:
		return kindBytes
	default:
		return kindNone
	}
}

// asUint64 widens the unsigned types that may not fit into an int64.
func asUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint:
		return uint64(v), true
	case uint64:
		return v, true
	case uintptr:
		return uint64(v), true
	default:
		return 0, false
	}
}
