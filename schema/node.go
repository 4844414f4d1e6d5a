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

// Package schema holds definitions of models shared between different parts of the migrator.
package schema

// Record is a single document pulled from the document source.
// Its shape is not fixed, records of the same collection may carry different fields.
type Record map[string]any

// Node identifies graph nodes of one label by the value of their merge key property.
type Node struct {
	Label    string `json:"label"`
	MergeKey string `json:"mergeKey"`
}

// Key returns the merge key value of the record and whether it is usable for a merge.
// A present but nil value is not usable, as Neo4j cannot merge on null.
func (n Node) Key(record Record) (any, bool) {
	value, ok := record[n.MergeKey]
	if !ok || value == nil {
		return nil, false
	}

	return value, true
}
