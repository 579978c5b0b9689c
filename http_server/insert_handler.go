package http_server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danthegoodman1/icescan/parquet_accumulator"
)

type (
	InsertReqBody struct {
		// Line-delimited JSON (NDJSON)
		RowsString *string
		// Array of JSON
		Rows []map[string]any
	}

	InsertStats struct {
		NumRows      int64
		NumFiles     int64
		BytesWritten int64
		TimeMS       int64
	}
)

func (s *HTTPServer) InsertHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	start := time.Now()

	var reqBody InsertReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}

	ts, err := s.MetaStore.GetTableSchema(ctx, c.Param("table"))
	if err != nil {
		return c.TableError(err, "error getting table")
	}
	store, err := s.Registry.Get(ts.Location)
	if err != nil {
		return c.TableError(err, "error resolving table location")
	}
	acc, err := parquet_accumulator.NewAccumulator(ts)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	if reqBody.RowsString != nil {
		if _, err := acc.WriteNDJSON(strings.NewReader(*reqBody.RowsString)); err != nil {
			return c.TableError(err, "error reading rows")
		}
	}
	for _, row := range reqBody.Rows {
		if err := acc.WriteRow(row); err != nil {
			return c.TableError(err, "error reading rows")
		}
	}
	numRows := acc.NumRows()
	if numRows == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	entries, err := acc.Flush(ctx, store)
	if err != nil {
		return c.TableError(err, "error writing files")
	}
	var totalBytes int64
	for _, e := range entries {
		if err := s.MetaStore.RegisterFile(ctx, ts.Name, e); err != nil {
			return c.TableError(err, "error registering file")
		}
		totalBytes += e.Size
	}

	return c.JSON(http.StatusAccepted, InsertStats{
		NumRows:      int64(numRows),
		BytesWritten: totalBytes,
		NumFiles:     int64(len(entries)),
		TimeMS:       time.Since(start).Milliseconds(),
	})
}
