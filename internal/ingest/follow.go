package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/tailer"
)

// IngestLines ingests lines until the channel closes or ctx is canceled.
// Uncommitted lines are flushed every FlushInterval and on exit.
func (p *Pipeline) IngestLines(ctx context.Context, source string, lines <-chan tailer.Line) (*Stats, error) {
	run := p.newRun(source)
	p.logger.Info("following log", zap.String("run_id", run.stats.RunID), zap.String("source", source))

	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return run.finish(ctx.Err())

		case <-ticker.C:
			if run.pending > 0 {
				if err := run.commit(); err != nil {
					return run.finish(err)
				}
			}

		case line, ok := <-lines:
			if !ok {
				return run.finish(nil)
			}
			if line.Err != nil {
				p.logger.Warn("tailer error", zap.String("source", source), zap.Error(line.Err))
				continue
			}
			if err := run.handle(line.Num, line.Text); err != nil {
				return run.finish(err)
			}
		}
	}
}
