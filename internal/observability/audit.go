package observability

import (
	"sync"

	"go.uber.org/zap"
)

// AuditLog is a fire-and-forget sink for chat event lines. LogEvent never
// blocks the caller; when the buffer is full the line is dropped and counted.
type AuditLog struct {
	logger  *zap.Logger
	metrics *Metrics
	lines   chan string
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAuditLog starts the drain goroutine.
//
// Precondition: logger must be non-nil; buffer must be >= 1. metrics may be nil.
func NewAuditLog(logger *zap.Logger, metrics *Metrics, buffer int) *AuditLog {
	a := &AuditLog{
		logger:  logger.Named("audit"),
		metrics: metrics,
		lines:   make(chan string, buffer),
		done:    make(chan struct{}),
	}
	go a.drain()
	return a
}

// LogEvent queues line for the audit logger.
func (a *AuditLog) LogEvent(line string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.lines <- line:
	default:
		if a.metrics != nil {
			a.metrics.AuditDropped.Add(1)
		}
	}
}

// Close flushes queued lines and stops the drain goroutine. Safe to call more than once.
func (a *AuditLog) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.lines)
	a.mu.Unlock()
	<-a.done
}

func (a *AuditLog) drain() {
	defer close(a.done)
	for line := range a.lines {
		a.logger.Info(line)
	}
}
