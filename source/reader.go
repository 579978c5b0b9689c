package source

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/danthegoodman1/icescan/utils"
)

// selectReader turns decoded records into records of schema, picking
// columns by name. pull returns a record the reader owns, or nil at the
// end of the file.
type selectReader struct {
	refs   int64
	schema *arrow.Schema
	pull   func() (arrow.Record, error)
	closer io.Closer

	// column of the decoded record for each schema field, resolved on the
	// first record
	columns []int
	cur     arrow.Record
	err     error
	done    bool
}

func newSelectReader(schema *arrow.Schema, pull func() (arrow.Record, error), closer io.Closer) *selectReader {
	return &selectReader{refs: 1, schema: schema, pull: pull, closer: closer}
}

func (r *selectReader) Retain() {
	atomic.AddInt64(&r.refs, 1)
}

func (r *selectReader) Release() {
	if atomic.AddInt64(&r.refs, -1) != 0 {
		return
	}
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	r.finish()
}

func (r *selectReader) finish() {
	r.done = true
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing file")
		}
		r.closer = nil
	}
}

func (r *selectReader) Schema() *arrow.Schema {
	return r.schema
}

func (r *selectReader) Record() arrow.Record {
	return r.cur
}

func (r *selectReader) Err() error {
	return r.err
}

func (r *selectReader) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if r.done {
		return false
	}

	rec, err := r.pull()
	if err != nil {
		r.err = err
		r.finish()
		return false
	}
	if rec == nil {
		r.finish()
		return false
	}
	defer rec.Release()

	if r.columns == nil {
		if r.columns, err = resolveColumns(r.schema, rec.Schema()); err != nil {
			r.err = err
			r.finish()
			return false
		}
	}
	cols := make([]arrow.Array, len(r.columns))
	for i, idx := range r.columns {
		cols[i] = rec.Column(idx)
	}
	r.cur = array.NewRecord(r.schema, cols, rec.NumRows())
	return true
}

func resolveColumns(want, got *arrow.Schema) ([]int, error) {
	columns := make([]int, want.NumFields())
	for i, f := range want.Fields() {
		idx := -1
		for j, g := range got.Fields() {
			if strings.EqualFold(f.Name, g.Name) {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: column %q not found in file", utils.ErrData, f.Name)
		}
		if dt := got.Field(idx).Type; !arrow.TypeEqual(f.Type, dt) {
			return nil, fmt.Errorf("%w: column %q has type %s in file, expected %s", utils.ErrData, f.Name, dt, f.Type)
		}
		columns[i] = idx
	}
	return columns, nil
}
