// Package progress reports per-tile outcomes of an acquisition run.
package progress

import (
	"os"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Outcome string

const (
	Fetched Outcome = "fetched"
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// Report describes one finished tile attempt. Completed and Total are scoped
// to the zoom level pass (or to the retry pass, where Zoom is meaningless).
type Report struct {
	Tile      tile.Coordinate
	Outcome   Outcome
	Err       error
	Completed uint64
	Total     uint64
}

func (r Report) Percent() float64 {
	if r.Total == 0 {
		return 100
	}
	return float64(r.Completed) / float64(r.Total) * 100
}

// Sink receives reports. Implementations must not block for long and must
// never fail the run.
type Sink interface {
	Report(Report)
}

type SinkFunc func(Report)

func (f SinkFunc) Report(r Report) { f(r) }

type nopSink struct{}

func (nopSink) Report(Report) {}

func Nop() Sink { return nopSink{} }

type multi []Sink

func (m multi) Report(r Report) {
	for _, s := range m {
		s.Report(r)
	}
}

func Tee(sinks ...Sink) Sink {
	return multi(sinks)
}

// FileSink writes one timestamped line per report into a RotatingFile.
type FileSink struct {
	file   *RotatingFile
	logger *zap.Logger
}

var _ Sink = (*FileSink)(nil)

func NewFileSink(dir string, maxLines int) *FileSink {
	file := NewRotatingFile(dir, maxLines)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(file), zapcore.InfoLevel)

	// Write failures of the progress log end up on stderr and are otherwise ignored.
	l := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))

	return &FileSink{file: file, logger: l}
}

func (s *FileSink) Report(r Report) {
	fields := []zap.Field{
		zap.String("tile", r.Tile.String()),
		zap.String("outcome", string(r.Outcome)),
		zap.Uint64("completed", r.Completed),
		zap.Uint64("total", r.Total),
		zap.String("percent", formatPercent(r.Percent())),
	}
	if r.Err != nil {
		s.logger.Warn("tile", append(fields, zap.Error(r.Err))...)
		return
	}
	s.logger.Info("tile", fields...)
}

func (s *FileSink) Close() error {
	_ = s.logger.Sync()
	return s.file.Close()
}

// LoggerSink forwards failed tiles at warn level and every whole percent step
// at info level to an application logger.
type LoggerSink struct {
	l logger.Logger
}

func NewLoggerSink(l logger.Logger) *LoggerSink {
	return &LoggerSink{l: l}
}

func (s *LoggerSink) Report(r Report) {
	if r.Outcome == Failed {
		s.l.Warn("tile failed", "tile", r.Tile.String(), "error", r.Err)
	}
	if r.Total == 0 || r.Completed == 0 {
		return
	}
	// log when the integer percentage changes
	if r.Completed == r.Total || r.Completed*100/r.Total != (r.Completed-1)*100/r.Total {
		s.l.Info("progress", "zoom", r.Tile.Zoom, "completed", r.Completed, "total", r.Total, "percent", formatPercent(r.Percent()))
	}
}
