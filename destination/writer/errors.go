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
	"fmt"
)

var (
	// ErrMissingMergeKey occurs when a record lacks the merge key of its entity.
	// The whole batch containing the record is rejected before execution.
	ErrMissingMergeKey = errors.New("missing merge key")
	// ErrSinkRejected occurs when the graph sink fails to execute a batch statement.
	ErrSinkRejected = errors.New("sink rejected batch")
	// ErrInvalidRelationshipPayload occurs when a relationship payload field holds
	// a value of the wrong shape, e.g. a scalar where an embedded object is expected.
	ErrInvalidRelationshipPayload = errors.New("invalid relationship payload")
	// ErrIntegerOverflow occurs when an unsigned property value does not fit into a 64-bit signed integer.
	ErrIntegerOverflow = errors.New("integer overflows int64")

	// errNoCountRow occurs when the sink returns no row for a batch statement.
	errNoCountRow = errors.New("statement returned no count row")
)

// MissingMergeKeyError reports the record that rejected a batch.
type MissingMergeKeyError struct {
	Entity   string
	MergeKey string
	// Batch is the zero-based index of the batch within the entity's upsert.
	Batch int
	// Record is the zero-based index of the record within the batch.
	Record int
}

func (e *MissingMergeKeyError) Error() string {
	return fmt.Sprintf("%s batch %d record %d: %s %q", e.Entity, e.Batch, e.Record, ErrMissingMergeKey, e.MergeKey)
}

// Unwrap makes the error match [ErrMissingMergeKey].
func (e *MissingMergeKeyError) Unwrap() error {
	return ErrMissingMergeKey
}

// SinkRejectedError reports the batch statement the sink failed to execute.
type SinkRejectedError struct {
	Entity string
	// Batch is the zero-based index of the batch within the entity's upsert.
	Batch int
	Err   error
}

func (e *SinkRejectedError) Error() string {
	return fmt.Sprintf("%s batch %d: %s: %v", e.Entity, e.Batch, ErrSinkRejected, e.Err)
}

// Unwrap makes the error match both [ErrSinkRejected] and the sink error.
func (e *SinkRejectedError) Unwrap() []error {
	return []error{ErrSinkRejected, e.Err}
}
