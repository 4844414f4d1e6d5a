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

import "errors"

var (
	// ErrSourceUnavailable occurs when the document source cannot be reached
	// while opening a collection or fetching the next chunk of documents.
	// Records already returned by the [Stream] stay valid.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEndOfStream occurs when calling [Stream.Next] on an exhausted stream.
	ErrEndOfStream = errors.New("end of stream")

	// errInvalidChunkSize occurs when the requested chunk size is not positive.
	errInvalidChunkSize = errors.New("chunk size must be greater than zero")
)
