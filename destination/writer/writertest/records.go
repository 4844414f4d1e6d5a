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

package writertest

import (
	"context"
	"errors"

	"github.com/minormending/neo4j-galaxy-store/schema"
)

var errExhausted = errors.New("records exhausted")

// Records is a [writer.Iterator] over a fixed slice of records.
type Records struct {
	records []schema.Record
	// FailAfter, when positive, makes HasNext fail with Err once that many records were returned.
	FailAfter int
	Err       error
	read      int
}

// NewRecords creates a [Records] iterator over the records.
func NewRecords(records ...schema.Record) *Records {
	return &Records{records: records}
}

// HasNext reports whether records are left.
func (r *Records) HasNext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if r.FailAfter > 0 && r.read >= r.FailAfter {
		return false, r.Err
	}

	return r.read < len(r.records), nil
}

// Next returns the next record.
func (r *Records) Next(ctx context.Context) (schema.Record, error) {
	hasNext, err := r.HasNext(ctx)
	if err != nil {
		return nil, err
	}

	if !hasNext {
		return nil, errExhausted
	}

	record := r.records[r.read]
	r.read++

	return record, nil
}
