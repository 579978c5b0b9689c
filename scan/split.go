package scan

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/danthegoodman1/icescan/metrics"
	"github.com/danthegoodman1/icescan/minmax"
	"github.com/danthegoodman1/icescan/ordering"
	"github.com/danthegoodman1/icescan/part"
)

// SplitGroupsByStatistics regroups the files of fileGroups into the fewest
// groups whose files are sorted and do not overlap on sortOrder, using the
// min/max statistics of each file. Input group boundaries are ignored.
//
// Files are taken in ascending order of their lower bound and appended to
// the first group whose last file ends strictly before the file starts. A
// new group is opened when none qualifies.
func SplitGroupsByStatistics(tableSchema *arrow.Schema, fileGroups []part.FileGroup, sortOrder ordering.LexOrdering) ([]part.FileGroup, error) {
	files := part.Flatten(fileGroups)
	if len(files) == 0 {
		return []part.FileGroup{}, nil
	}

	s, err := minmax.NewFromFiles(sortOrder, tableSchema, nil, files)
	if err != nil {
		metrics.PackingAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("construct min/max statistics for split groups by statistics: %w", err)
	}

	// each group holds file indices, the last one bounds what may follow
	var indexGroups [][]int
	for _, idx := range s.MinValuesSorted() {
		placed := false
		for g, group := range indexGroups {
			if s.StartsAfter(idx, group[len(group)-1]) {
				indexGroups[g] = append(group, idx)
				placed = true
				break
			}
		}
		if !placed {
			indexGroups = append(indexGroups, []int{idx})
		}
	}

	out := make([]part.FileGroup, len(indexGroups))
	for g, group := range indexGroups {
		out[g] = make(part.FileGroup, len(group))
		for i, idx := range group {
			out[g][i] = files[idx]
		}
	}

	metrics.PackingAttempts.WithLabelValues("packed").Inc()
	metrics.PackedGroups.Observe(float64(len(out)))
	logger.Debug().Int("files", len(files)).Int("groups", len(out)).Str("ordering", sortOrder.String()).Msg("split file groups by statistics")
	return out, nil
}
