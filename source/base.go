package source

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/scan"
	"github.com/danthegoodman1/icescan/stats"
)

var logger = gologger.NewComponentLogger("source")

// binding is the state every format shares once a scan binds it.
type binding struct {
	batchSize int
	schema    *arrow.Schema
	// projected is the schema of the file columns the scan reads
	projected     *arrow.Schema
	statistics    stats.Statistics
	hasStatistics bool
}

func (b binding) withProjection(cfg *scan.Config) binding {
	b.projected = cfg.ProjectedFileSchema()
	return b
}

func (b binding) withStatistics(s stats.Statistics) binding {
	b.statistics = s.Clone()
	b.hasStatistics = true
	return b
}

func (b binding) readSchema() (*arrow.Schema, error) {
	if b.projected != nil {
		return b.projected, nil
	}
	if b.schema != nil {
		return b.schema, nil
	}
	return nil, fmt.Errorf("source has no schema bound")
}

func (b binding) stats() (stats.Statistics, error) {
	if !b.hasStatistics {
		return stats.Statistics{}, fmt.Errorf("statistics must be set before they are read")
	}
	return b.statistics, nil
}

func (b binding) batchSizeOrDefault() int {
	if b.batchSize <= 0 {
		return scan.DefaultBatchSize
	}
	return b.batchSize
}
