package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/icescan/config"
	"github.com/danthegoodman1/icescan/crdb"
	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/http_server"
	"github.com/danthegoodman1/icescan/metastore"
	"github.com/danthegoodman1/icescan/migrations"
	"github.com/danthegoodman1/icescan/utils"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting icescan")

	cfg, err := config.LoadConfig(utils.CONFIG_FILE)
	if err != nil {
		logger.Error().Err(err).Msg("error loading config")
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("error setting up data stores")
		os.Exit(1)
	}

	ms, err := buildMetaStore(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("error setting up metastore")
		os.Exit(1)
	}

	httpServer := http_server.NewHTTPServer(ms, registry, http_server.ScanDefaults{
		BatchSize:              cfg.Scan.BatchSize,
		TargetPartitions:       cfg.Scan.TargetPartitions,
		RepartitionFileMinSize: cfg.Scan.RepartitionFileMinSize,
		PoolSize:               cfg.Scan.PoolSize,
	})
	if err := httpServer.Start(cfg.HTTP.Port); err != nil {
		logger.Error().Err(err).Msg("error starting HTTP server")
		os.Exit(1)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := cfg.HTTP.ShutdownSleepSec
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}
	if err := ms.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown metastore")
	}
	registry.Shutdown(ctx)
}

func buildRegistry(cfg *config.Config) (*datastore.Registry, error) {
	registry := datastore.NewRegistry()
	disk, err := datastore.NewDiskDataStore(cfg.Disk.Root)
	if err != nil {
		return nil, fmt.Errorf("error in NewDiskDataStore: %w", err)
	}
	if err := registry.Register("file://", disk); err != nil {
		return nil, fmt.Errorf("error registering disk store: %w", err)
	}

	if cfg.S3.Bucket != "" {
		s3Store, err := datastore.NewS3DataStore(datastore.S3Config{
			Bucket:   cfg.S3.Bucket,
			Prefix:   cfg.S3.Prefix,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("error in NewS3DataStore: %w", err)
		}
		if err := registry.Register("s3://"+cfg.S3.Bucket, s3Store); err != nil {
			return nil, fmt.Errorf("error registering s3 store: %w", err)
		}
		logger.Info().Str("bucket", cfg.S3.Bucket).Msg("registered s3 data store")
	}
	return registry, nil
}

func buildMetaStore(cfg *config.Config) (metastore.MetaStore, error) {
	if cfg.MetaStore != "crdb" {
		logger.Warn().Msg("using in memory metastore, tables are lost on exit")
		return metastore.NewMemoryMetaStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()
	pool, err := crdb.ConnectToDB(ctx, cfg.CRDB.DSN, cfg.CRDB.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("error connecting to CRDB: %w", err)
	}

	applied, err := migrations.RunMigrations(cfg.CRDB.DSN)
	if err != nil {
		return nil, fmt.Errorf("error running migrations: %w", err)
	}
	logger.Info().Int("applied", applied).Msg("ran migrations")
	if err := migrations.CheckMigrations(cfg.CRDB.DSN); err != nil {
		return nil, fmt.Errorf("error checking migrations: %w", err)
	}
	return metastore.NewCRDBMetaStore(pool, time.Second*10), nil
}
