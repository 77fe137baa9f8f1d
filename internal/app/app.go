// Package app wires configuration into the services shared by cmd/server
// and cmd/worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/autolink/internal/agent"
	"github.com/ignite/autolink/internal/config"
	"github.com/ignite/autolink/internal/linking"
	"github.com/ignite/autolink/internal/pkg/awsconfig"
	"github.com/ignite/autolink/internal/pkg/distlock"
	"github.com/ignite/autolink/internal/pkg/logger"
	"github.com/ignite/autolink/internal/repository/postgres"
	"github.com/ignite/autolink/internal/service/rule"
	"github.com/ignite/autolink/internal/service/suggestion"
	"github.com/ignite/autolink/internal/storage"
)

// App holds the long-lived clients and services.
type App struct {
	DB          *sql.DB
	Redis       *redis.Client
	S3          *s3.Client
	Contents    *postgres.ContentRepo
	Archive     *storage.RevisionArchive
	Rules       *rule.Service
	Suggestions *suggestion.Service
}

// New connects to PostgreSQL, Redis and AWS and builds the services. Redis,
// Bedrock and the revision archive are optional.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedact(cfg.Log.RedactEnabled())

	db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{DB: db, Redis: OpenRedis(ctx, cfg.Redis.URL)}

	renderer, err := linking.NewTemplateRenderer(cfg.Linking.LinkTemplate)
	if err != nil {
		a.Close()
		return nil, err
	}

	var awsCfg aws.Config
	needAWS := cfg.AWS.BedrockEnabled || cfg.AWS.RevisionBucket != ""
	if needAWS {
		awsCfg, err = awsconfig.Load(ctx, awsconfig.Options{
			Region:          cfg.AWS.Region,
			Profile:         cfg.AWS.Profile,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Contents = postgres.NewContentRepo(db)
	deps := suggestion.Deps{
		Contents:  a.Contents,
		Committer: postgres.NewCommitRepo(db),
		Locker:    distlock.NewProvider(a.Redis, db, cfg.Redis.LockTTL()),
		Applier:   linking.NewApplier(renderer),
	}
	a.Rules = rule.NewService(postgres.NewRuleRepo(db))
	deps.Rules = a.Rules

	if cfg.AWS.RevisionBucket != "" {
		a.S3 = s3.NewFromConfig(awsCfg)
		var dynamo storage.DynamoAPI
		if cfg.AWS.RevisionTable != "" {
			dynamo = dynamodb.NewFromConfig(awsCfg)
		}
		a.Archive = storage.NewRevisionArchive(a.S3, dynamo, storage.Options{
			Bucket:    cfg.AWS.RevisionBucket,
			Prefix:    cfg.AWS.RevisionPrefix,
			Table:     cfg.AWS.RevisionTable,
			Retention: cfg.AWS.RevisionRetention(),
		})
		deps.Archiver = a.Archive
		log.Printf("[app] Revision archive: s3://%s/%s", cfg.AWS.RevisionBucket, cfg.AWS.RevisionPrefix)
	}

	if cfg.AWS.BedrockEnabled {
		deps.Generator = agent.NewBedrockGenerator(bedrockruntime.NewFromConfig(awsCfg), agent.Options{
			ModelID:           cfg.AWS.BedrockModelID,
			MaxSuggestions:    cfg.Linking.MaxAISuggestions,
			RequestsPerSecond: cfg.AWS.BedrockRequestsPerSecond,
			Burst:             cfg.AWS.BedrockBurst,
		})
		log.Printf("[app] Bedrock generator enabled (region %s)", cfg.AWS.Region)
	}

	a.Suggestions = suggestion.NewService(postgres.NewSuggestionRepo(db), deps, SuggestionConfig(cfg.Linking))
	return a, nil
}

// SuggestionConfig maps the linking section onto the lifecycle config.
func SuggestionConfig(c config.LinkingConfig) suggestion.Config {
	return suggestion.Config{
		RuleMatchedConfidence: c.RuleMatchedConfidence,
		MaxLinksPerContent:    c.MaxLinksPerContent,
		GenerateTimeout:       c.GenerateTimeout(),
		MaxContextChars:       c.MaxContextChars,
	}
}

// OpenDB opens and pings PostgreSQL.
func OpenDB(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to url. It returns nil when url is empty or Redis is
// unreachable; content locks then fall back to PostgreSQL advisory locks.
func OpenRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	var client *redis.Client
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[app] Warning: Redis connection failed: %v, falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	return client
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
