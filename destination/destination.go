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

// Package destination implements the Neo4j graph sink of the migrator.
package destination

import (
	"context"
	"errors"
	"fmt"

	"github.com/minormending/neo4j-galaxy-store/config"
	"github.com/minormending/neo4j-galaxy-store/destination/writer"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// errNotOpened occurs when using the [Destination] before calling Open.
var errNotOpened = errors.New("destination is not opened")

// Destination executes statements against a Neo4j database.
type Destination struct {
	config config.Neo4jConfig
	driver neo4j.DriverWithContext
}

// New creates a new instance of the [Destination].
func New(cfg config.Neo4jConfig) *Destination {
	return &Destination{config: cfg}
}

// Open creates the Neo4j driver and makes sure the instance is reachable.
func (d *Destination) Open(ctx context.Context) error {
	driver, err := neo4j.NewDriverWithContext(d.config.URI, d.config.Auth.AuthToken())
	if err != nil {
		return fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		// the driver is useless at this point, the close error adds nothing
		_ = driver.Close(ctx)

		return fmt.Errorf("ping neo4j instance: %w", err)
	}

	d.driver = driver

	zerolog.Ctx(ctx).Info().Str("database", d.config.Database).Msg("connected to neo4j")

	return nil
}

// Execute runs the statement in a write transaction of its own session and collects its result rows.
// The transaction either commits the whole statement or nothing.
func (d *Destination) Execute(ctx context.Context, statement writer.Statement) ([]map[string]any, error) {
	if d.driver == nil {
		return nil, errNotOpened
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: d.config.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	rows, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) ([]map[string]any, error) {
		result, err := tx.Run(ctx, statement.Query, statement.Params)
		if err != nil {
			return nil, fmt.Errorf("run statement: %w", err)
		}

		records, err := result.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect result: %w", err)
		}

		rows := make([]map[string]any, 0, len(records))
		for _, record := range records {
			row := make(map[string]any, len(record.Keys))
			for i, key := range record.Keys {
				row[key] = record.Values[i]
			}

			rows = append(rows, row)
		}

		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("execute write: %w", err)
	}

	return rows, nil
}

// Teardown gracefully closes connections.
func (d *Destination) Teardown(ctx context.Context) error {
	if d.driver != nil {
		if err := d.driver.Close(ctx); err != nil {
			return fmt.Errorf("close neo4j driver: %w", err)
		}
	}

	return nil
}
