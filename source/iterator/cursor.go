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

//go:generate mockgen -package mock -destination mock/iterator.go . Cursor,Finder

// Package iterator implements lazy streaming of records from the document source.
package iterator

import "context"

// Cursor walks over the documents of one collection, fetching them from the server in chunks.
// It is satisfied by the MongoDB driver cursor.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Finder opens a [Cursor] over every document of a named collection.
type Finder interface {
	Find(ctx context.Context, collection string, chunkSize int) (Cursor, error)
}
