package diagnostics

import (
	"context"

	"github.com/nickmkk/Platibus/pkg/logger"
)

// LogSink emits every event as a structured log line through pkg/logger.
// It is the default sink wired by cmd/platibus when no external collector
// is configured.
type LogSink struct {
	ctx context.Context
}

// NewLogSink returns a Sink that logs events against ctx (used for trace
// correlation; pass context.Background() if none is available).
func NewLogSink(ctx context.Context) *LogSink {
	if ctx == nil {
		ctx = context.Background()
	}
	return &LogSink{ctx: ctx}
}

func (s *LogSink) Emit(e Event) {
	args := []any{
		"source", e.Source,
		"messageId", e.MessageId,
	}
	if e.Queue != "" {
		args = append(args, "queue", e.Queue)
	}
	if e.Topic != "" {
		args = append(args, "topic", e.Topic)
	}
	if e.Destination != "" {
		args = append(args, "destination", e.Destination)
	}
	if e.HTTPStatus != 0 {
		args = append(args, "httpStatus", e.HTTPStatus)
	}
	if e.Class != "" {
		args = append(args, "class", e.Class)
	}

	log := logger.L()
	switch e.Type {
	case MessageDeliveryFailed, DeadLetter, SubscriptionFailed, TransportFailureEvent, EndpointNotFound:
		if e.Err != nil {
			args = append(args, "error", e.Err)
		}
		log.WarnContext(s.ctx, string(e.Type), args...)
	default:
		log.InfoContext(s.ctx, string(e.Type), args...)
	}
}
