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

package iterator

import (
	"time"

	"github.com/minormending/neo4j-galaxy-store/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize converts a decoded document into a [schema.Record] of plain Go values,
// so records carry no BSON-specific types past the reader.
func Normalize(document bson.M) schema.Record {
	record := make(schema.Record, len(document))
	for field, value := range document {
		record[field] = normalizeValue(value)
	}

	return record
}

//nolint:cyclop // a flat type switch reads better than a lookup table here
func normalizeValue(value any) any {
	switch v := value.(type) {
	case bson.M:
		return normalizeMap(v)
	case map[string]any:
		return normalizeMap(v)
	case bson.D:
		document := make(map[string]any, len(v))
		for _, element := range v {
			document[element.Key] = normalizeValue(element.Value)
		}

		return document
	case bson.A:
		return normalizeSlice(v)
	case []any:
		return normalizeSlice(v)
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return v.Data
	case primitive.Regex:
		return v.Pattern
	case primitive.JavaScript:
		return string(v)
	case primitive.Symbol:
		return string(v)
	case primitive.CodeWithScope:
		return string(v.Code)
	case primitive.Null, primitive.Undefined, primitive.MinKey, primitive.MaxKey:
		return nil
	default:
		return value
	}
}

func normalizeMap(document map[string]any) map[string]any {
	normalized := make(map[string]any, len(document))
	for field, value := range document {
		normalized[field] = normalizeValue(value)
	}

	return normalized
}

func normalizeSlice(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}

	return normalized
}
