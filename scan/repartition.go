package scan

import (
	"github.com/danthegoodman1/icescan/part"
)

// FileGroupPartitioner splits files into byte ranges so a scan can use more
// partitions than it has file groups.
type FileGroupPartitioner struct {
	TargetPartitions int
	// RepartitionFileMinSize is the total size below which files are not
	// split
	RepartitionFileMinSize int64
	// PreserveOrderWithinGroups only splits groups holding a single file, so
	// the order of files within every group is kept
	PreserveOrderWithinGroups bool
}

// Repartition returns new groups and true, or false when the groups should
// be kept. Groups containing ranged files are never split again.
func (p FileGroupPartitioner) Repartition(groups []part.FileGroup) ([]part.FileGroup, bool) {
	if p.TargetPartitions <= 1 || len(groups) == 0 {
		return nil, false
	}
	files := part.Flatten(groups)
	var total int64
	for _, f := range files {
		if f.Range != nil {
			return nil, false
		}
		total += f.Size
	}
	if total == 0 || total < p.RepartitionFileMinSize {
		return nil, false
	}

	if p.PreserveOrderWithinGroups {
		return p.preservingOrder(groups)
	}
	return p.evenlyBySize(files, total)
}

func (p FileGroupPartitioner) evenlyBySize(files []part.PartitionedFile, total int64) ([]part.FileGroup, bool) {
	target := (total + int64(p.TargetPartitions) - 1) / int64(p.TargetPartitions)

	var out []part.FileGroup
	var current part.FileGroup
	var currentSize int64
	for _, f := range files {
		if f.Size == 0 {
			continue
		}
		var start int64
		for start < f.Size {
			end := start + target - currentSize
			if end > f.Size {
				end = f.Size
			}
			current = append(current, f.WithRange(start, end))
			currentSize += end - start
			if currentSize >= target {
				out = append(out, current)
				current = nil
				currentSize = 0
			}
			start = end
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out, true
}

type splitCandidate struct {
	source    int
	size      int64
	newGroups []int
}

func (c splitCandidate) rangeSize() int64 {
	return c.size / int64(len(c.newGroups))
}

func (p FileGroupPartitioner) preservingOrder(groups []part.FileGroup) ([]part.FileGroup, bool) {
	if len(groups) >= p.TargetPartitions {
		return nil, false
	}
	if len(groups) == 1 && len(groups[0]) == 1 {
		return p.evenlyBySize(groups[0], groups[0][0].Size)
	}

	var candidates []*splitCandidate
	for i, g := range groups {
		if len(g) == 1 {
			candidates = append(candidates, &splitCandidate{source: i, size: g[0].Size, newGroups: []int{i}})
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	// every new group takes a range of the file with the largest ranges so far
	out := part.CloneGroups(groups)
	for len(out) < p.TargetPartitions {
		largest := candidates[0]
		for _, c := range candidates[1:] {
			if c.rangeSize() > largest.rangeSize() {
				largest = c
			}
		}
		largest.newGroups = append(largest.newGroups, len(out))
		out = append(out, nil)
	}

	for _, c := range candidates {
		original := out[c.source][0]
		rangeSize := c.rangeSize()
		var start int64
		for i, g := range c.newGroups {
			end := start + rangeSize
			if i == len(c.newGroups)-1 {
				end = c.size
			}
			out[g] = part.FileGroup{original.WithRange(start, end)}
			start = end
		}
	}
	return out, true
}
