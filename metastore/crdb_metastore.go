package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danthegoodman1/icescan/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

const uniqueViolation = "23505"

// CRDBMetaStore keeps tables in CockroachDB, in the tables created by the
// migrations package.
type CRDBMetaStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewCRDBMetaStore(pool *pgxpool.Pool, timeout time.Duration) *CRDBMetaStore {
	return &CRDBMetaStore{pool: pool, timeout: timeout}
}

func (ms *CRDBMetaStore) GetTableSchema(ctx context.Context, table string) (TableSchema, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("table", table).Msg("getting table schema")
	var ts TableSchema
	err := utils.ReliableExec(ctx, ms.pool, ms.timeout, func(ctx context.Context, conn *pgxpool.Conn) error {
		var raw pgtype.JSONB
		err := conn.QueryRow(ctx, `SELECT schema, created_at, updated_at FROM tables WHERE name = $1`, table).
			Scan(&raw, &ts.CreatedAt, &ts.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		if err != nil {
			return fmt.Errorf("error in QueryRow: %w", err)
		}
		createdAt, updatedAt := ts.CreatedAt, ts.UpdatedAt
		if raw.Status != pgtype.Present {
			return fmt.Errorf("table %s has no schema", table)
		}
		if err := json.Unmarshal(raw.Bytes, &ts); err != nil {
			return fmt.Errorf("error in json.Unmarshal: %w", err)
		}
		ts.CreatedAt, ts.UpdatedAt = createdAt, updatedAt
		return nil
	})
	return ts, err
}

func (ms *CRDBMetaStore) CreateTableSchema(ctx context.Context, ts TableSchema) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("table", ts.Name).Msg("creating table schema")
	if err := ts.Check(); err != nil {
		return fmt.Errorf("invalid table schema: %w", err)
	}
	if ts.ID == "" {
		ts.ID = utils.GenRandomID("tbl_")
	}
	raw, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("error in json.Marshal: %w", err)
	}

	err = utils.ReliableExecInTx(ctx, ms.pool, ms.timeout, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO tables (name, id, schema) VALUES ($1, $2, $3)`, ts.Name, ts.ID, pgtype.JSONB{Bytes: raw, Status: pgtype.Present})
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrTableExists, ts.Name)
	}
	if err != nil {
		return fmt.Errorf("error inserting table: %w", err)
	}
	return nil
}

func (ms *CRDBMetaStore) ListFiles(ctx context.Context, table string) ([]FileEntry, error) {
	return ms.listFiles(ctx, table, nil)
}

func (ms *CRDBMetaStore) ListFilesInPartitions(ctx context.Context, table string, partitions []string) ([]FileEntry, error) {
	return ms.listFiles(ctx, table, utils.ArrayOrEmpty(partitions))
}

func (ms *CRDBMetaStore) listFiles(ctx context.Context, table string, partitions []string) ([]FileEntry, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("table", table).Strs("partitions", partitions).Msg("listing files")

	var files []FileEntry
	err := utils.ReliableExec(ctx, ms.pool, ms.timeout, func(ctx context.Context, conn *pgxpool.Conn) error {
		if err := tableExists(ctx, conn, table); err != nil {
			return err
		}

		query := `SELECT location, partition_path, size, num_rows, created_at FROM files WHERE table_name = $1`
		args := []any{table}
		if partitions != nil {
			query += ` AND partition_path = ANY($2)`
			args = append(args, partitions)
		}
		rows, err := conn.Query(ctx, query+` ORDER BY partition_path, location`, args...)
		if err != nil {
			return fmt.Errorf("error querying files: %w", err)
		}
		defer rows.Close()
		index := map[string]int{}
		for rows.Next() {
			var f FileEntry
			if err := rows.Scan(&f.Location, &f.Partition, &f.Size, &f.NumRows, &f.CreatedAt); err != nil {
				return fmt.Errorf("error scanning file: %w", err)
			}
			index[f.Location] = len(files)
			files = append(files, f)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating files: %w", err)
		}
		rows.Close()

		statRows, err := conn.Query(ctx, `SELECT location, column_name, min_value, max_value, null_count
			FROM column_stats WHERE table_name = $1 ORDER BY location, column_name`, table)
		if err != nil {
			return fmt.Errorf("error querying column stats: %w", err)
		}
		defer statRows.Close()
		for statRows.Next() {
			var location string
			var cs ColumnStats
			if err := statRows.Scan(&location, &cs.Name, &cs.Min, &cs.Max, &cs.NullCount); err != nil {
				return fmt.Errorf("error scanning column stats: %w", err)
			}
			if i, ok := index[location]; ok {
				files[i].Columns = append(files[i].Columns, cs)
			}
		}
		return statRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return utils.ArrayOrEmpty(files), nil
}

func tableExists(ctx context.Context, conn *pgxpool.Conn, table string) error {
	var exists bool
	err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tables WHERE name = $1)`, table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("error checking table: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

func (ms *CRDBMetaStore) RegisterFile(ctx context.Context, table string, f FileEntry) error {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("table", table).Str("file", f.Location).Msg("registering file")

	return utils.ReliableExecInTx(ctx, ms.pool, ms.timeout, func(ctx context.Context, tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tables WHERE name = $1)`, table).Scan(&exists); err != nil {
			return fmt.Errorf("error checking table: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}

		_, err := tx.Exec(ctx, `UPSERT INTO files (table_name, location, partition_path, size, num_rows) VALUES ($1, $2, $3, $4, $5)`,
			table, f.Location, f.Partition, f.Size, f.NumRows)
		if err != nil {
			return fmt.Errorf("error upserting file: %w", err)
		}
		_, err = tx.Exec(ctx, `DELETE FROM column_stats WHERE table_name = $1 AND location = $2`, table, f.Location)
		if err != nil {
			return fmt.Errorf("error clearing column stats: %w", err)
		}

		batch := &pgx.Batch{}
		for _, cs := range f.Columns {
			batch.Queue(`INSERT INTO column_stats (table_name, location, column_name, min_value, max_value, null_count) VALUES ($1, $2, $3, $4, $5, $6)`,
				table, f.Location, cs.Name, cs.Min, cs.Max, cs.NullCount)
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("error inserting column stats: %w", err)
			}
		}
		return br.Close()
	})
}

func (ms *CRDBMetaStore) Shutdown(context.Context) error {
	ms.pool.Close()
	return nil
}
