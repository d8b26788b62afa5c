// Package logger implements a non-blocking, batched comparison logger.
//
// One record per comparison request is written to an internal buffered
// channel and flushed in batches by a background goroutine, so logging never
// blocks the request path. If the channel fills up (> 10 000 entries), new
// entries are dropped and counted in DroppedLogs.
//
// Records carry outcome data only. Prompt text and model responses are never
// logged.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// ComparisonLog summarises one request to the comparison endpoint.
type ComparisonLog struct {
	ID        uuid.UUID
	RequestID string
	ClientID  string
	Status    uint16
	Demo      bool
	Models    uint8
	Failed    uint8
	// Rejection is the validation or rate-limit reason, empty on success.
	Rejection string
	LatencyMs uint32
	CreatedAt time.Time
}

type Logger struct {
	ch        chan ComparisonLog
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	droppedLogs int64

	baseCtx context.Context
	log     *slog.Logger
}

func New(ctx context.Context, slogger *slog.Logger) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("logger: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	l := &Logger{
		ch:      make(chan ComparisonLog, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		log:     slogger,
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log enqueues entry. A zero ID is replaced with a fresh UUID.
func (l *Logger) Log(entry ComparisonLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	select {
	case l.ch <- entry:
	default:
		atomic.AddInt64(&l.droppedLogs, 1)
	}
}

func (l *Logger) DroppedLogs() int64 {
	return atomic.LoadInt64(&l.droppedLogs)
}

// Close flushes queued entries and stops the background goroutine.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]ComparisonLog, 0, batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			attrs := []slog.Attr{
				slog.String("id", e.ID.String()),
				slog.String("request_id", e.RequestID),
				slog.String("client_id", e.ClientID),
				slog.Uint64("status", uint64(e.Status)),
				slog.Bool("demo", e.Demo),
				slog.Uint64("models", uint64(e.Models)),
				slog.Uint64("failed", uint64(e.Failed)),
				slog.Uint64("latency_ms", uint64(e.LatencyMs)),
				slog.Time("created_at", normalizeTime(e.CreatedAt)),
			}
			if e.Rejection != "" {
				attrs = append(attrs, slog.String("rejection", e.Rejection))
			}
			l.log.LogAttrs(ctx, slog.LevelInfo, "comparison", attrs...)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-l.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush(l.baseCtx)
			}

		case <-ticker.C:
			flush(l.baseCtx)

		case <-l.done:
			for {
				select {
				case entry := <-l.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush(l.baseCtx)
					}
				default:
					flush(l.baseCtx)
					return
				}
			}
		}
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
