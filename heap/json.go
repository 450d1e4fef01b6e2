package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/oliverschwartz/alloc"
)

// BlockJsonData populates a json object with summary information about this heap
func (h *Heap) BlockJsonData(json *jwriter.ObjectState) {
	var stats alloc.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	json.Name("TotalBytes").Int(h.managedBytes())
	json.Name("UnusedBytes").Int(h.managedBytes() - stats.AllocationBytes)
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.UnusedRangeCount)
}

// PrintDetailedMap writes the summary json followed by a Blocks array holding
// one entry per physical block, in address order.
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	h.BlockJsonData(&objState)

	arrayState := objState.Name("Blocks").Array()
	defer arrayState.End()

	_ = h.VisitAllBlocks(
		func(pos int, size int, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(pos)
			obj.Name("Size").Int(size)
			if free {
				obj.Name("Type").String("FREE")
			} else {
				obj.Name("Type").String("ALLOCATED")
			}

			return nil
		})
}

// BuildStatsString renders PrintDetailedMap to a string for logging.
func (h *Heap) BuildStatsString() string {
	writer := jwriter.NewWriter()
	h.PrintDetailedMap(&writer)
	return string(writer.Bytes())
}
