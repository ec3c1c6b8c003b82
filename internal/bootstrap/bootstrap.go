// Package bootstrap builds the stores and clients the commands share from
// the environment.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/leech/internal/storage"
	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"
	"github.com/OFFIS-RIT/leech/pkg/source"
	"github.com/OFFIS-RIT/leech/pkg/store"
	"github.com/OFFIS-RIT/leech/pkg/store/dynamo"
	"github.com/OFFIS-RIT/leech/pkg/store/neo4jdb"
	"github.com/OFFIS-RIT/leech/pkg/store/neptune"
	pgxstore "github.com/OFFIS-RIT/leech/pkg/store/pgx"
	"github.com/OFFIS-RIT/leech/pkg/store/redisvault"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnknownBackend = errors.New("unknown backend")

const (
	VaultPostgres = "postgres"
	VaultDynamoDB = "dynamodb"
	VaultRedis    = "redis"

	GraphNeptune = "neptune"
	GraphNeo4j   = "neo4j"
)

type Deps struct {
	AWS    aws.Config
	Bucket *storage.Bucket
	Schema *schema.Schema
	Pool   *pgxpool.Pool
	Vault  sensitive.Vault
	Source source.Driver

	closers []func()
}

// ListenerQueues returns the main queue and the isolated queue graph writes
// are routed to.
func ListenerQueues() (string, string) {
	return util.GetEnvString("LEECH_LISTENER_QUEUE", "leech_listener"),
		util.GetEnvString("VPC_LEECH_LISTENER_QUEUE", "vpc_leech_listener")
}

// WorkerQueues are the queues a worker consumes, from WORKER_QUEUES. By
// default only the main listener is consumed. Graph writes land on the
// isolated queue, whose consumer runs as its own deployment with
// WORKER_QUEUES naming that queue.
func WorkerQueues() []string {
	if queues := util.GetEnvList("WORKER_QUEUES"); len(queues) > 0 {
		return queues
	}
	listener, _ := ListenerQueues()
	return []string{listener}
}

func Load(ctx context.Context) (*Deps, error) {
	d := &Deps{}

	cfg, err := storage.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	d.AWS = cfg
	d.Bucket = storage.NewBucket(storage.NewS3Client(cfg), util.GetEnv("LEECH_BUCKET_NAME"))

	loader := schema.NewLoader(d.Bucket, util.GetEnvString("SCHEMA_FOLDER", schema.DefaultFolder))
	d.Schema, err = loader.LoadSchema(ctx, util.GetEnvString("SCHEMA_NAME", schema.DefaultSchemaName))
	if err != nil {
		return nil, err
	}
	logger.Info("[Bootstrap] Schema loaded", "vertexes", len(d.Schema.Vertexes()), "edges", len(d.Schema.Edges()))

	d.Pool, err = pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	d.closers = append(d.closers, d.Pool.Close)

	d.Vault, err = d.vault(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Source = source.NewS3Driver(d.Bucket, util.GetEnvString("SOURCE_PREFIX", "records"))
	return d, nil
}

func (d *Deps) vault(ctx context.Context) (sensitive.Vault, error) {
	backend := strings.ToLower(util.GetEnvString("VAULT_BACKEND", VaultPostgres))
	logger.Debug("[Bootstrap] Using vault backend", "backend", backend)

	switch backend {
	case VaultPostgres:
		return pgxstore.NewVault(d.Pool), nil
	case VaultDynamoDB:
		return dynamo.NewVault(dynamodb.NewFromConfig(d.AWS), util.GetEnvString("SENSITIVE_TABLE", "leech-sensitive")), nil
	case VaultRedis:
		v, err := redisvault.New(ctx, redisvault.Options{
			URL: util.GetEnvString("REDIS_URL", "redis://localhost:6379/0"),
			TTL: util.GetEnvDuration("REDIS_VAULT_TTL", 0),
		})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = v.Close() })
		return v, nil
	}
	return nil, fmt.Errorf("%w: vault %q", ErrUnknownBackend, backend)
}

// IndexStore is the Postgres index for the loaded schema.
func (d *Deps) IndexStore() store.IndexStore {
	return pgxstore.NewIndexStore(d.Pool, d.Schema)
}

// GraphSink connects to the graph database selected by GRAPH_BACKEND.
func (d *Deps) GraphSink(ctx context.Context) (store.GraphSink, error) {
	backend := strings.ToLower(util.GetEnvString("GRAPH_BACKEND", GraphNeptune))
	logger.Debug("[Bootstrap] Using graph backend", "backend", backend)

	switch backend {
	case GraphNeptune:
		var creds aws.CredentialsProvider
		if util.GetEnvBool("NEPTUNE_IAM_AUTH", true) {
			creds = d.AWS.Credentials
		}
		client := neptune.NewClient(util.GetEnv("GRAPH_DB_ENDPOINT"), d.AWS.Region, creds)
		return neptune.NewGraphSink(client), nil
	case GraphNeo4j:
		cfg := neo4jdb.Config{
			URI:         util.GetEnv("NEO4J_URI"),
			User:        util.GetEnvString("NEO4J_USER", "neo4j"),
			Password:    util.GetEnv("NEO4J_PASSWORD"),
			Database:    util.GetEnv("NEO4J_DATABASE"),
			Timeout:     util.GetEnvDuration("NEO4J_TIMEOUT", 10*time.Second),
			MaxPoolSize: util.GetEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		}
		driver, err := neo4jdb.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = driver.Close(context.Background()) })
		sink := neo4jdb.NewGraphSink(driver, cfg.Database)
		sink.EnsureSchema(ctx)
		return sink, nil
	}
	return nil, fmt.Errorf("%w: graph %q", ErrUnknownBackend, backend)
}

// Close releases everything Load and GraphSink opened, newest first.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
