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

package schema

import (
	"errors"
	"fmt"
)

// RelationshipKind defines how a relationship payload is embedded in a record.
type RelationshipKind string

// The available relationship kinds are listed below.
const (
	// KindForeignKey is a scalar field holding the merge key of an existing node.
	KindForeignKey RelationshipKind = "foreignKey"
	// KindCollection is an array field, each value is the merge key of a node
	// that is created if absent.
	KindCollection RelationshipKind = "collection"
	// KindSubDocument is an embedded object whose KeyField holds the merge key of an existing node.
	KindSubDocument RelationshipKind = "subDocument"
)

// Direction defines which way an edge points relative to the owning entity.
type Direction string

// The available directions are listed below.
const (
	// Outgoing edges point from the owning entity to the related node.
	Outgoing Direction = "outgoing"
	// Incoming edges point from the related node to the owning entity.
	Incoming Direction = "incoming"
)

var (
	errEmptyLabel        = errors.New("empty label")
	errEmptyMergeKey     = errors.New("empty merge key")
	errEmptyCollection   = errors.New("empty collection")
	errInvalidBatchSize  = errors.New("batch size must be greater than zero")
	errEmptyRelationType = errors.New("empty relationship type")
	errEmptyPayloadField = errors.New("empty relationship payload field")
	errEmptyKeyField     = errors.New("sub-document relationship requires a key field")
	errUnknownKind       = errors.New("unknown relationship kind")
	errUnknownDirection  = errors.New("unknown relationship direction")
	errDuplicateRelation = errors.New("duplicate relationship type")
)

// Relationship describes a typed edge between the owning entity and a related node,
// derived from a payload field of the owning entity's records.
type Relationship struct {
	// Type is the edge type, e.g. IN.
	Type string
	// Kind defines how the payload is embedded in the record.
	Kind RelationshipKind
	// Field is the record field holding the payload.
	Field string
	// KeyField is the identifying field of the embedded object, used by [KindSubDocument] only.
	KeyField string
	// Target identifies the related nodes.
	Target Node
	Direction Direction
}

// RequiresTarget reports whether the related nodes must exist before the relationship is merged.
func (r Relationship) RequiresTarget() bool {
	return r.Kind != KindCollection
}

// Validate checks that the relationship definition is complete.
func (r Relationship) Validate() error {
	switch {
	case r.Type == "":
		return errEmptyRelationType
	case r.Field == "":
		return errEmptyPayloadField
	case r.Target.Label == "":
		return fmt.Errorf("target: %w", errEmptyLabel)
	case r.Target.MergeKey == "":
		return fmt.Errorf("target: %w", errEmptyMergeKey)
	}

	switch r.Kind {
	case KindForeignKey, KindCollection:
	case KindSubDocument:
		if r.KeyField == "" {
			return errEmptyKeyField
		}
	default:
		return fmt.Errorf("%w %q", errUnknownKind, r.Kind)
	}

	if r.Direction != Outgoing && r.Direction != Incoming {
		return fmt.Errorf("%w %q", errUnknownDirection, r.Direction)
	}

	return nil
}

// Entity describes how the records of one collection become nodes of one label.
type Entity struct {
	Node

	// Collection is the name of the source collection.
	Collection string
	// BatchSize is the number of records merged by a single statement.
	BatchSize int
	// Excluded lists fields that are never written as node properties.
	Excluded []string
	// Relationships are merged in the same statement as the entity's nodes.
	Relationships []Relationship
}

// ExcludedFields returns every field that must not be written as a plain property:
// the merge key, the statically excluded fields and the relationship payload fields.
func (e Entity) ExcludedFields() map[string]struct{} {
	excluded := make(map[string]struct{}, len(e.Excluded)+len(e.Relationships)+1)
	excluded[e.MergeKey] = struct{}{}

	for _, field := range e.Excluded {
		excluded[field] = struct{}{}
	}

	for _, relationship := range e.Relationships {
		excluded[relationship.Field] = struct{}{}
	}

	return excluded
}

// Validate checks that the entity definition is complete.
func (e Entity) Validate() error {
	switch {
	case e.Label == "":
		return errEmptyLabel
	case e.MergeKey == "":
		return fmt.Errorf("%s: %w", e.Label, errEmptyMergeKey)
	case e.Collection == "":
		return fmt.Errorf("%s: %w", e.Label, errEmptyCollection)
	case e.BatchSize <= 0:
		return fmt.Errorf("%s: %w", e.Label, errInvalidBatchSize)
	}

	types := make(map[string]struct{}, len(e.Relationships))
	for _, relationship := range e.Relationships {
		if err := relationship.Validate(); err != nil {
			return fmt.Errorf("%s relationship %q: %w", e.Label, relationship.Type, err)
		}

		if _, ok := types[relationship.Type]; ok {
			return fmt.Errorf("%s: %w %q", e.Label, errDuplicateRelation, relationship.Type)
		}

		types[relationship.Type] = struct{}{}
	}

	return nil
}
