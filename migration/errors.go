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

package migration

import "errors"

var (
	// ErrDependencyNotSatisfied occurs when a stage references nodes of a type
	// whose stage neither runs earlier nor was migrated before.
	// It is an error of the stage plan, not of the data.
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")

	errNoStages         = errors.New("no stages to run")
	errDuplicateStage   = errors.New("duplicate stage")
	errNoSource         = errors.New("document source is required")
	errNoSink           = errors.New("graph sink is required")
	errInvalidChunkSize = errors.New("chunk size must not be negative")
)
