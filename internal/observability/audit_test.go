package observability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditLog_DeliversLines(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewAuditLog(zap.New(core), nil, 8)

	a.LogEvent("[alice]: hi")
	a.LogEvent("[bob]: hello")
	a.Close()

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "[alice]: hi", entries[0].Message)
		assert.Equal(t, "audit", entries[0].LoggerName)
	}
}

func TestAuditLog_DropsWhenFull(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	m := NewMetrics()
	a := &AuditLog{
		logger:  zap.New(core),
		metrics: m,
		lines:   make(chan string, 1),
		done:    make(chan struct{}),
	}
	// No drain goroutine: the second line cannot be queued.
	a.LogEvent("one")
	a.LogEvent("two")
	a.LogEvent("three")
	assert.Equal(t, int64(2), m.AuditDropped.Load())
}

func TestAuditLog_CloseIsIdempotent(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	a := NewAuditLog(zap.New(core), nil, 4)
	a.Close()
	a.Close()
	a.LogEvent("after close")
}

func TestAuditLog_ConcurrentWriters(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewAuditLog(zap.New(core), nil, 1000)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			for j := 0; j < 50; j++ {
				a.LogEvent(fmt.Sprintf("%d-%d", i, j))
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	a.Close()
	assert.Equal(t, 500, logs.Len())
}
