package writer

import "errors"

// AsyncWriterStats provides statistics about async writer operations.
type AsyncWriterStats struct {
	// QueueDepth is the current number of pending writes in the queue
	QueueDepth int `json:"queue_depth"`

	// DroppedWrites is the total number of writes dropped due to backpressure
	DroppedWrites int64 `json:"dropped_writes"`

	// TotalWrites is the total number of writes accepted into the queue
	TotalWrites int64 `json:"total_writes"`

	// FailedWrites is the total number of upserts the layer rejected
	FailedWrites int64 `json:"failed_writes"`
}

// Add returns the field-wise sum of two stats, used to report a chain's writers together.
func (s AsyncWriterStats) Add(o AsyncWriterStats) AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    s.QueueDepth + o.QueueDepth,
		DroppedWrites: s.DroppedWrites + o.DroppedWrites,
		TotalWrites:   s.TotalWrites + o.TotalWrites,
		FailedWrites:  s.FailedWrites + o.FailedWrites,
	}
}

// Errors returned by async writer operations.
var (
	// ErrQueueFull is returned when the write queue is full and MaxWaitTime exceeded
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned when attempting to write to a closed writer
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush() times out waiting for queue to drain
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
