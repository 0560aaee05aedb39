// Package scan provides the scan service that loads IOCs, runs the modality
// matchers and reports which IOCs are confirmed.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/evaluator"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/flatten"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/iocstore"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/metrics"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/report"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Service manages the scan lifecycle
type Service struct {
	config     Config
	sources    []iocstore.Source
	sink       iocstore.Sink
	matchers   Matchers
	alloc      *flatten.Allocator
	assembler  *report.Assembler
	recorder   *metrics.Recorder
	progressCh chan<- Progress
}

// Progress represents scan progress sent via channel
type Progress struct {
	Step     int    `json:"step"`
	Total    int    `json:"total"`
	StepName string `json:"stepName"`
	Detail   string `json:"detail"`
	Done     bool   `json:"done"`
}

// Result is everything a finished scan produced
type Result struct {
	Report   *types.Report
	Iocs     []types.Ioc
	Plan     *flatten.Plan
	Outcomes []search.Outcome
	SinkErr  error
	Duration time.Duration
}

// Option customizes a Service
type Option func(*Service)

// WithProgress sends progress events to ch. The channel is never closed by
// the service; the last event has Done set.
func WithProgress(ch chan<- Progress) Option {
	return func(s *Service) { s.progressCh = ch }
}

// WithRecorder records run metrics into r
func WithRecorder(r *metrics.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithAllocator shares an entry id allocator across runs
func WithAllocator(a *flatten.Allocator) Option {
	return func(s *Service) { s.alloc = a }
}

// WithAssembler replaces the report assembler
func WithAssembler(a *report.Assembler) Option {
	return func(s *Service) { s.assembler = a }
}

// NewService creates a scan service. sink may be nil, in which case the
// report is only returned.
func NewService(cfg Config, sources []iocstore.Source, sink iocstore.Sink, matchers Matchers, opts ...Option) *Service {
	s := &Service{
		config:   cfg,
		sources:  sources,
		sink:     sink,
		matchers: matchers,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alloc == nil {
		s.alloc = flatten.NewAllocator()
	}
	if s.assembler == nil {
		s.assembler = report.New()
		s.assembler.Detail = cfg.Detail
	}
	if s.recorder == nil {
		s.recorder = metrics.NewRecorder()
	}
	return s
}

// Recorder returns the metrics of the service's runs
func (s *Service) Recorder() *metrics.Recorder {
	return s.recorder
}

// load, flatten, seven matchers, evaluate, report
const totalSteps = 11

func (s *Service) emitProgress(step int, name, detail string) {
	if s.progressCh == nil {
		return
	}
	s.progressCh <- Progress{Step: step, Total: totalSteps, StepName: name, Detail: detail}
}

// Execute runs one scan-report cycle. It fails only when the IOC trees
// cannot be flattened or ctx is cancelled; source and sink failures are
// logged and degrade the run.
func (s *Service) Execute(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	scanID := uuid.New().String()
	logger.Section("Scan " + scanID)

	// ── Step 1: Load IOCs ──
	s.emitProgress(1, "Loading IOCs...", "")
	iocs, err := iocstore.Load(ctx, s.config.MaxIocs, s.sources...)
	if err != nil {
		logger.Error("No IOCs could be loaded: %v", err)
		iocs = nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.recorder.IocsLoaded.Set(float64(len(iocs)))
	s.emitProgress(1, "IOCs loaded", fmt.Sprintf("%d IOCs", len(iocs)))

	// ── Step 2: Flatten ──
	s.emitProgress(2, "Compiling IOC trees...", "")
	plan, err := flatten.New(s.alloc, s.config.MaxDepth).Flatten(iocs)
	if err != nil {
		return nil, fmt.Errorf("failed to compile IOCs: %w", err)
	}
	for _, m := range search.Modalities {
		if s.config.Enabled(m) {
			continue
		}
		if n := plan.Requests.Count(m); n > 0 {
			logger.Info("%s search disabled, dropping %d requests", m, n)
		}
		plan.Requests.Drop(m)
	}
	s.emitProgress(2, "IOC trees compiled", fmt.Sprintf("%d entries, %d requests", len(plan.Entries), plan.Requests.Total()))

	// ── Steps 3-9: Modality matchers ──
	outcomes, err := s.runMatchers(ctx, &plan.Requests)
	if err != nil {
		return nil, err
	}

	// ── Step 10: Evaluate ──
	s.emitProgress(10, "Evaluating IOCs...", "")
	confirmed := evaluator.Evaluate(plan, outcomes)
	s.recorder.Confirmed.Set(float64(len(confirmed)))
	logger.Info("Confirmed IOCs: %v", confirmed)
	s.emitProgress(10, "IOCs evaluated", fmt.Sprintf("%d confirmed", len(confirmed)))

	// ── Step 11: Report ──
	s.emitProgress(11, "Reporting results...", "")
	rep := s.assembler.Assemble(scanID, confirmed, outcomes)
	result := &Result{Report: rep, Iocs: iocs, Plan: plan, Outcomes: outcomes}
	if s.sink != nil {
		if err := s.sink.Submit(ctx, rep); err != nil {
			logger.Error("Failed to deliver report: %v", err)
			result.SinkErr = err
		}
	}
	result.Duration = time.Since(startTime)
	logger.Timing("Scan", startTime)

	if s.progressCh != nil {
		s.progressCh <- Progress{
			Step:     totalSteps,
			Total:    totalSteps,
			StepName: "Scan complete",
			Detail:   fmt.Sprintf("%d of %d IOCs confirmed, %.1fs elapsed", len(confirmed), len(iocs), result.Duration.Seconds()),
			Done:     true,
		}
	}
	return result, nil
}

type matcherTask struct {
	step     int
	modality search.Modality
	requests int
	run      func() []search.Outcome
}

func (s *Service) tasks(r *search.Requests) []matcherTask {
	m := s.matchers
	return []matcherTask{
		{3, search.File, len(r.Files), func() []search.Outcome { return runMatcher(search.File, m.File, r.Files) }},
		{4, search.Registry, len(r.Registry), func() []search.Outcome { return runMatcher(search.Registry, m.Registry, r.Registry) }},
		{5, search.DNS, len(r.DNS), func() []search.Outcome { return runMatcher(search.DNS, m.DNS, r.DNS) }},
		{6, search.Connection, len(r.Connections), func() []search.Outcome {
			return runMatcher(search.Connection, m.Connection, r.Connections)
		}},
		{7, search.Process, len(r.Processes), func() []search.Outcome { return runMatcher(search.Process, m.Process, r.Processes) }},
		{8, search.Mutex, len(r.Mutexes), func() []search.Outcome { return runMatcher(search.Mutex, m.Mutex, r.Mutexes) }},
		{9, search.Certificate, len(r.Certificates), func() []search.Outcome {
			return runMatcher(search.Certificate, m.Certificate, r.Certificates)
		}},
	}
}

// runMatchers runs every matcher with requests, sequentially or concurrently,
// and merges their outcomes in modality order.
func (s *Service) runMatchers(ctx context.Context, r *search.Requests) ([]search.Outcome, error) {
	tasks := s.tasks(r)
	results := make([][]search.Outcome, len(tasks))

	run := func(i int) {
		t := tasks[i]
		if t.requests == 0 {
			s.emitProgress(t.step, fmt.Sprintf("Skipping %s search", t.modality), "no requests")
			return
		}
		s.emitProgress(t.step, fmt.Sprintf("Searching %s...", t.modality), fmt.Sprintf("%d requests", t.requests))
		start := time.Now()
		results[i] = t.run()
		took := time.Since(start)
		s.recorder.ObserveSearch(t.modality, t.requests, results[i], took)
		s.emitProgress(t.step, fmt.Sprintf("%s search complete", t.modality),
			fmt.Sprintf("%d hits, %d errors", len(search.Hits(results[i])), len(search.Errors(results[i]))))
	}

	if s.config.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range tasks {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				run(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range tasks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			run(i)
		}
	}

	var outcomes []search.Outcome
	for _, res := range results {
		outcomes = append(outcomes, res...)
	}
	return outcomes, nil
}
