package writer

import "errors"

// Errors returned by AsyncWriter.
var (
	ErrQueueFull    = errors.New("writer: queue full, write dropped")
	ErrWriterClosed = errors.New("writer: writer is closed")
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)

// AsyncWriterStats is a snapshot of an AsyncWriter's counters.
type AsyncWriterStats struct {
	QueueDepth    int   `json:"queue_depth"`
	DroppedWrites int64 `json:"dropped_writes"`
	TotalWrites   int64 `json:"total_writes"`
	FailedWrites  int64 `json:"failed_writes"`
}
