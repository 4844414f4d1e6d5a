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

// Package config implements configurations shared between different parts of the migrator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

var (
	// neo4jSchemes are the URI schemes accepted by the Neo4j driver.
	neo4jSchemes = []string{"bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc"}
	// mongoSchemes are the URI schemes accepted by the MongoDB driver.
	mongoSchemes = []string{"mongodb", "mongodb+srv"}

	errInvalidScheme    = errors.New("unsupported uri scheme")
	errEmptyDatabase    = errors.New("empty database name")
	errInvalidSize      = errors.New("must be greater than zero")
	errChunkSizeTooHigh = errors.New("source chunk size exceeds int32")
	errInvalidLogFormat = errors.New("log format must be console or json")
)

// Config holds configurable values of a migration run.
type Config struct {
	Neo4j Neo4jConfig `envPrefix:"NEO4J_"`
	Mongo MongoConfig `envPrefix:"MONGO_"`
	Batch BatchConfig
	Log   LogConfig `envPrefix:"LOG_"`

	// The address to serve Prometheus metrics on while the migration runs, disabled if empty.
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Neo4jConfig holds the graph sink connection values.
type Neo4jConfig struct {
	// The connection URI pointed to a Neo4j instance.
	URI string `env:"URI" envDefault:"bolt://localhost:7687"`
	// The name of a database the migrator writes to.
	Database string `env:"DATABASE" envDefault:"neo4j"`
	// Auth holds auth-specific configurable values.
	Auth AuthConfig
}

// AuthConfig holds auth-specific configurable values.
type AuthConfig struct {
	// The username to use when performing basic auth.
	Username string `env:"USERNAME" envDefault:"neo4j"`
	// The password to use when performing basic auth.
	Password string `env:"PASSWORD" envDefault:"test"`
	// The realm to use when performing basic auth.
	Realm string `env:"REALM"`
}

// MongoConfig holds the document source connection values.
type MongoConfig struct {
	URI      string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"DATABASE" envDefault:"galaxy_store"`
}

// BatchConfig holds the sizes of source chunks and sink batches.
type BatchConfig struct {
	// The number of documents fetched from the source per round trip.
	ChunkSize int `env:"SOURCE_CHUNK_SIZE" envDefault:"1000"`
	// The number of records merged per statement.
	Size int `env:"BATCH_SIZE" envDefault:"1000"`
	// The number of app records merged per statement.
	AppSize int `env:"APP_BATCH_SIZE" envDefault:"250"`
	// Determines whether the next batch is read while the current one is written.
	Pipeline bool `env:"PIPELINE" envDefault:"false"`
}

// LogConfig holds logging values.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
}

// AuthToken returns [neo4j.AuthToken] based on the [AuthConfig] values.
func (c AuthConfig) AuthToken() neo4j.AuthToken {
	if c.Username != "" || c.Password != "" || c.Realm != "" {
		return neo4j.BasicAuth(c.Username, c.Password, c.Realm)
	}

	return neo4j.NoAuth()
}

// Load reads the optional dotenv files and parses the [Config] from the environment.
// Missing dotenv files are ignored, variables already set in the environment win.
func Load(files ...string) (Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load dotenv file %q: %w", file, err)
		}
	}

	return parse(env.Options{})
}

// LoadFrom parses the [Config] from the provided variables instead of the process environment.
func LoadFrom(environment map[string]string) (Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the [Config] values.
func (c Config) Validate() error {
	if err := validateURI(c.Neo4j.URI, neo4jSchemes); err != nil {
		return fmt.Errorf("neo4j uri: %w", err)
	}

	if c.Neo4j.Database == "" {
		return fmt.Errorf("neo4j: %w", errEmptyDatabase)
	}

	if err := validateURI(c.Mongo.URI, mongoSchemes); err != nil {
		return fmt.Errorf("mongo uri: %w", err)
	}

	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo: %w", errEmptyDatabase)
	}

	switch {
	case c.Batch.ChunkSize <= 0:
		return fmt.Errorf("source chunk size %w", errInvalidSize)
	case c.Batch.ChunkSize > math.MaxInt32:
		return errChunkSizeTooHigh
	case c.Batch.Size <= 0:
		return fmt.Errorf("batch size %w", errInvalidSize)
	case c.Batch.AppSize <= 0:
		return fmt.Errorf("app batch size %w", errInvalidSize)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		return errInvalidLogFormat
	}

	return nil
}

func validateURI(raw string, schemes []string) error {
	uri, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if !slices.Contains(schemes, uri.Scheme) {
		return fmt.Errorf("%w %q", errInvalidScheme, uri.Scheme)
	}

	return nil
}
