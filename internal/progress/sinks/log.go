package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/progress"
)

// LogSink writes each event as a structured log line. Fetch and decision
// events go to debug so production logs only carry location milestones.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.Int64("location_id", evt.LocationID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePageFetched:
			fields = append(fields,
				zap.String("site", evt.Site),
				zap.String("url", evt.URL),
				zap.Int64("bytes", evt.Bytes),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("progress event", fields...)
		case progress.StageDecision:
			fields = append(fields, zap.String("url", evt.URL), zap.String("action", evt.Action))
			s.logger.Debug("progress event", fields...)
		default:
			fields = append(fields,
				zap.String("site", evt.Site),
				zap.Int("artists", evt.Artists),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
