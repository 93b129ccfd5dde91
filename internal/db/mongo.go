package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"attendance-backend/config"
)

// InitMongo connects to MongoDB and verifies the connection with a ping.
func InitMongo(ctx context.Context, cfg *config.DatabaseConfig) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.DSN)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	log.Printf("Connected to mongodb database %q", cfg.MongoDatabase)
	return client, nil
}
