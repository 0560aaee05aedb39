package iocstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Sink receives the report of a scan
type Sink interface {
	Name() string
	Submit(ctx context.Context, report *types.Report) error
}

// ReportFileName returns the file name a report taken at t is stored under
func ReportFileName(t time.Time) string {
	return "Report-" + t.Local().Format("_2006-01-02_15-04-05") + ".json"
}

// FileSink writes pretty-printed reports into Dir
type FileSink struct {
	Dir string

	lastPath string
}

// Name identifies the sink in logs
func (s *FileSink) Name() string { return "file" }

// Path returns the file written by the last successful Submit
func (s *FileSink) Path() string { return s.lastPath }

// Submit writes the report to a timestamped file
func (s *FileSink) Submit(ctx context.Context, report *types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	stamp := report.Datetime
	if stamp.IsZero() {
		stamp = time.Now()
	}
	path := filepath.Join(dir, ReportFileName(stamp))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	s.lastPath = path
	logger.Info("Report written to %s", path)
	return nil
}

// FallbackSink submits to Primary and, when that fails, to Fallback
type FallbackSink struct {
	Primary  Sink
	Fallback Sink
}

// Name identifies the sink in logs
func (s *FallbackSink) Name() string {
	return s.Primary.Name() + "+" + s.Fallback.Name()
}

// Submit returns an error only when both sinks fail
func (s *FallbackSink) Submit(ctx context.Context, report *types.Report) error {
	err := s.Primary.Submit(ctx, report)
	if err == nil {
		return nil
	}
	logger.Warn("Report sink %s failed, falling back to %s: %v", s.Primary.Name(), s.Fallback.Name(), err)
	if ferr := s.Fallback.Submit(ctx, report); ferr != nil {
		return fmt.Errorf("%s: %v; %s: %w", s.Primary.Name(), err, s.Fallback.Name(), ferr)
	}
	return nil
}
