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

// Labels of the galaxy store entities.
const (
	LabelCategory   = "Category"
	LabelDeveloper  = "Developer"
	LabelApp        = "App"
	LabelPermission = "Permission"
	LabelReview     = "Review"
)

// Edge types of the galaxy store relationships.
const (
	RelationshipOwns     = "OWNS"
	RelationshipIn       = "IN"
	RelationshipRequires = "REQUIRES"
)

// documentIDField is the identifier field of every document in the source.
const documentIDField = "_id"

// BatchSizes holds the batch sizes used by [Galaxy].
type BatchSizes struct {
	// Default applies to the simple entities.
	Default int
	// App applies to apps, which carry far more fields than the other entities.
	App int
}

// Galaxy returns the galaxy store entities in dependency order:
// categories and developers first, then apps referencing both,
// then permissions, which apps create on demand, and reviews.
func Galaxy(sizes BatchSizes) []Entity {
	category := Node{Label: LabelCategory, MergeKey: documentIDField}
	developer := Node{Label: LabelDeveloper, MergeKey: "name"}
	permission := Node{Label: LabelPermission, MergeKey: "name"}

	return []Entity{
		{
			Node:       category,
			Collection: "categories",
			BatchSize:  sizes.Default,
		},
		{
			Node:       developer,
			Collection: "developers",
			BatchSize:  sizes.Default,
			Excluded:   []string{documentIDField},
		},
		{
			Node:       Node{Label: LabelApp, MergeKey: documentIDField},
			Collection: "apps",
			BatchSize:  sizes.App,
			Relationships: []Relationship{
				{
					Type:      RelationshipOwns,
					Kind:      KindSubDocument,
					Field:     "developer",
					KeyField:  developer.MergeKey,
					Target:    developer,
					Direction: Incoming,
				},
				{
					Type:      RelationshipIn,
					Kind:      KindForeignKey,
					Field:     "category_id",
					Target:    category,
					Direction: Outgoing,
				},
				{
					Type:      RelationshipRequires,
					Kind:      KindCollection,
					Field:     "permissions",
					Target:    permission,
					Direction: Outgoing,
				},
			},
		},
		{
			Node:       permission,
			Collection: "permissions",
			BatchSize:  sizes.Default,
			Excluded:   []string{documentIDField},
		},
		{
			Node:       Node{Label: LabelReview, MergeKey: documentIDField},
			Collection: "reviews",
			BatchSize:  sizes.Default,
		},
	}
}
