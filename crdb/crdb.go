package crdb

import (
	"context"
	"time"

	"github.com/danthegoodman1/icescan/gologger"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	PGPool                 *pgxpool.Pool
	StandardContextTimeout = 10 * time.Second

	logger = gologger.NewComponentLogger("crdb")
)

// ConnectToDB opens the shared pool the CRDB metastore runs on.
func ConnectToDB(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	logger.Debug().Msg("connecting to CRDB...")
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	config.MaxConns = maxConns
	config.MinConns = 1
	config.HealthCheckPeriod = time.Second * 5
	config.MaxConnLifetime = time.Minute * 30
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	PGPool = pool
	logger.Debug().Msg("connected to CRDB")
	return pool, nil
}
