package core

import (
	"context"
	"time"
)

// MetricsRecorder receives one observation per service operation. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per service operation. The returned context propagates to
// the transactional work so nested instrumentation can attach to it.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span opened by a Tracer.
type TraceSpan interface {
	End(err error)
}

// instrument wraps a service operation with tracing and metrics. A nil recorder
// or tracer is skipped, so instrumentation stays optional.
func (s *Service) instrument(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	started := time.Now()
	err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
	if err != nil {
		log.Debugf("%s failed: %v", operation, err)
	}
	return err
}
