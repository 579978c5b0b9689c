package source

import (
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/scan"
)

// repartitionByRange splits the files of cfg on byte ranges, keeping the
// order of files within groups when the scan has an output ordering.
func repartitionByRange(targetPartitions int, minSize int64, outputOrdering ordering.LexOrdering, cfg *scan.Config) *scan.Config {
	p := scan.FileGroupPartitioner{
		TargetPartitions:          targetPartitions,
		RepartitionFileMinSize:    minSize,
		PreserveOrderWithinGroups: len(outputOrdering) > 0,
	}
	groups, ok := p.Repartition(cfg.FileGroups)
	if !ok {
		return nil
	}
	logger.Debug().Str("format", cfg.Source.FileType()).Int("groups", len(groups)).Msg("repartitioned file groups")
	return cfg.ReplaceFileGroups(groups)
}
