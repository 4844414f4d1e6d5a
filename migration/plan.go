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

import (
	"fmt"

	"github.com/minormending/neo4j-galaxy-store/schema"
)

// ValidatePlan checks that the stages can run in the given order.
// Every relationship matching pre-existing nodes must target a type
// whose stage runs earlier or is listed in migrated.
func ValidatePlan(entities []schema.Entity, migrated []string) error {
	if len(entities) == 0 {
		return errNoStages
	}

	present := make(map[string]struct{}, len(entities)+len(migrated))
	for _, label := range migrated {
		present[label] = struct{}{}
	}

	planned := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		if err := entity.Validate(); err != nil {
			return fmt.Errorf("validate stage: %w", err)
		}

		if _, ok := planned[entity.Label]; ok {
			return fmt.Errorf("%w: %s", errDuplicateStage, entity.Label)
		}

		if err := checkDependencies(entity, present); err != nil {
			return err
		}

		planned[entity.Label] = struct{}{}
		present[entity.Label] = struct{}{}
	}

	return nil
}

// checkDependencies reports the first relationship of the entity whose target nodes are not present.
func checkDependencies(entity schema.Entity, present map[string]struct{}) error {
	for _, relationship := range entity.Relationships {
		if !relationship.RequiresTarget() {
			continue
		}

		if _, ok := present[relationship.Target.Label]; !ok {
			return fmt.Errorf("%w: %s stage relationship %s requires %s nodes",
				ErrDependencyNotSatisfied, entity.Label, relationship.Type, relationship.Target.Label)
		}
	}

	return nil
}

// constraintNodes returns every node type the stages merge, the stage entities first,
// followed by the collection targets that have no stage of their own.
func constraintNodes(entities []schema.Entity) []schema.Node {
	var (
		nodes = make([]schema.Node, 0, len(entities))
		seen  = make(map[string]struct{}, len(entities))
	)

	add := func(node schema.Node) {
		if _, ok := seen[node.Label]; ok {
			return
		}

		seen[node.Label] = struct{}{}
		nodes = append(nodes, node)
	}

	for _, entity := range entities {
		add(entity.Node)
	}

	for _, entity := range entities {
		for _, relationship := range entity.Relationships {
			if !relationship.RequiresTarget() {
				add(relationship.Target)
			}
		}
	}

	return nodes
}
