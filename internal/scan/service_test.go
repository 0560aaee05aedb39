package scan

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/flatten"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/iocstore"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// fakeMatcher reports a hit for every request whose target contains "evil"
type fakeMatcher[P tagged] struct {
	modality search.Modality
	target   func(P) string
	fail     error
	panics   bool
	calls    int32
}

func (f *fakeMatcher[P]) Search(params []P) []search.Outcome {
	atomic.AddInt32(&f.calls, 1)
	if f.panics {
		panic("enumeration exploded")
	}
	var out []search.Outcome
	for _, p := range params {
		if f.fail != nil {
			out = append(out, search.Fail(p.Ref(), f.modality, search.KindOS, "%v", f.fail))
			continue
		}
		if strings.Contains(f.target(p), "evil") {
			out = append(out, search.Hit(p.Ref(), f.modality, "found %s", f.target(p)))
		}
	}
	return out
}

type fakes struct {
	file     *fakeMatcher[search.FileParameters]
	registry *fakeMatcher[search.RegistryParameters]
	dns      *fakeMatcher[search.DNSParameters]
	conn     *fakeMatcher[search.ConnectionParameters]
	proc     *fakeMatcher[search.ProcessParameters]
	mutex    *fakeMatcher[search.MutexParameters]
	cert     *fakeMatcher[search.CertificateParameters]
}

func newFakes() *fakes {
	return &fakes{
		file:     &fakeMatcher[search.FileParameters]{modality: search.File, target: func(p search.FileParameters) string { return p.Name }},
		registry: &fakeMatcher[search.RegistryParameters]{modality: search.Registry, target: func(p search.RegistryParameters) string { return p.Key }},
		dns:      &fakeMatcher[search.DNSParameters]{modality: search.DNS, target: func(p search.DNSParameters) string { return p.Name }},
		conn:     &fakeMatcher[search.ConnectionParameters]{modality: search.Connection, target: func(p search.ConnectionParameters) string { return p.Name }},
		proc:     &fakeMatcher[search.ProcessParameters]{modality: search.Process, target: func(p search.ProcessParameters) string { return p.Name }},
		mutex:    &fakeMatcher[search.MutexParameters]{modality: search.Mutex, target: func(p search.MutexParameters) string { return p.Name }},
		cert:     &fakeMatcher[search.CertificateParameters]{modality: search.Certificate, target: func(p search.CertificateParameters) string { return p.Name }},
	}
}

func (f *fakes) matchers() Matchers {
	return Matchers{
		File: f.file, Registry: f.registry, DNS: f.dns, Connection: f.conn,
		Process: f.proc, Mutex: f.mutex, Certificate: f.cert,
	}
}

type staticSource struct {
	iocs []types.Ioc
	err  error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Fetch(context.Context) ([]types.Ioc, error) { return s.iocs, s.err }

type captureSink struct {
	reports []*types.Report
	err     error
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Submit(_ context.Context, r *types.Report) error {
	c.reports = append(c.reports, r)
	return c.err
}

func sampleIocs() []types.Ioc {
	return []types.Ioc{
		{ID: 1, Name: "dropper", Definition: types.IocEntry{
			FileCheck: &types.FileInfo{Name: `C:\evil.exe`},
		}},
		{ID: 2, Name: "beacon", Definition: types.IocEntry{
			EvalPolicy: types.PolicyAll,
			DNSCheck:   &types.DNSInfo{Data: []string{"evil.example.com"}},
			MutexCheck: &types.MutexInfo{Data: []string{"evil-mutex"}},
		}},
		{ID: 3, Name: "miner", Definition: types.IocEntry{
			Offspring: []types.IocEntry{
				{ProcessCheck: &types.ProcessInfo{Data: []string{"notepad.exe"}}},
				{ProcessCheck: &types.ProcessInfo{Data: []string{"evilminer.exe"}}},
			},
		}},
		{ID: 4, Name: "quiet", Definition: types.IocEntry{
			RegistryCheck: &types.RegistryInfo{Key: `HKLM\Software\Benign`},
			CertsCheck:    &types.CertsInfo{Search: types.CertSearchDomain, Data: []string{"benign"}},
			ConnsCheck:    &types.ConnectionsInfo{Search: types.ConnSearchIP, Data: []string{"203.0.113.7"}},
		}},
	}
}

func TestService_Execute(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		f := newFakes()
		f.mutex.fail = errors.New("access denied")
		sink := &captureSink{}
		progress := make(chan Progress, 64)

		cfg := DefaultConfig()
		cfg.Parallel = parallel
		svc := NewService(cfg, []iocstore.Source{staticSource{iocs: sampleIocs()}}, sink, f.matchers(), WithProgress(progress))

		res, err := svc.Execute(context.Background())
		require.NoError(t, err)
		close(progress)

		assert.Equal(t, []types.IocID{1, 3}, res.Report.FoundIocs, "parallel=%v", parallel)
		assert.NoError(t, res.SinkErr)
		require.Len(t, sink.reports, 1)
		assert.Same(t, res.Report, sink.reports[0])
		assert.NotEmpty(t, res.Report.ScanID)

		require.Len(t, res.Report.IocErrors, 1)
		assert.Equal(t, types.IocID(2), res.Report.IocErrors[0].IocID)
		assert.Equal(t, "os", res.Report.IocErrors[0].Kind)

		var last Progress
		for p := range progress {
			assert.LessOrEqual(t, p.Step, totalSteps)
			last = p
		}
		assert.True(t, last.Done)

		for _, m := range []*int32{&f.file.calls, &f.registry.calls, &f.dns.calls, &f.conn.calls, &f.proc.calls, &f.mutex.calls, &f.cert.calls} {
			assert.Equal(t, int32(1), atomic.LoadInt32(m))
		}

		rec := svc.Recorder()
		assert.Equal(t, 2.0, testutil.ToFloat64(rec.Confirmed))
		assert.Equal(t, 4.0, testutil.ToFloat64(rec.IocsLoaded))
		assert.Equal(t, 2.0, testutil.ToFloat64(rec.SearchRequests.WithLabelValues("process")))
		assert.Equal(t, 1.0, testutil.ToFloat64(rec.SearchErrors.WithLabelValues("mutex", "os")))
	}
}

func TestService_DisabledModality(t *testing.T) {
	f := newFakes()
	cfg := DefaultConfig()
	cfg.Disabled[search.File] = true
	cfg.Disabled[search.Process] = true

	svc := NewService(cfg, []iocstore.Source{staticSource{iocs: sampleIocs()}}, nil, f.matchers())
	res, err := svc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.IocID{2}, res.Report.FoundIocs)
	assert.Zero(t, atomic.LoadInt32(&f.file.calls))
	assert.Zero(t, atomic.LoadInt32(&f.proc.calls))
	assert.Empty(t, res.Plan.Requests.Files)
}

func TestService_MatcherPanicIsContained(t *testing.T) {
	f := newFakes()
	f.file.panics = true

	svc := NewService(DefaultConfig(), []iocstore.Source{staticSource{iocs: sampleIocs()}}, nil, f.matchers())
	res, err := svc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.IocID{2, 3}, res.Report.FoundIocs)
	errs := search.Errors(res.Outcomes)
	require.Len(t, errs, 1)
	assert.Equal(t, search.File, errs[0].Modality)
	assert.Equal(t, search.KindOS, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "enumeration exploded")
}

func TestService_MissingMatcher(t *testing.T) {
	f := newFakes()
	m := f.matchers()
	m.Mutex = nil

	svc := NewService(DefaultConfig(), []iocstore.Source{staticSource{iocs: sampleIocs()}}, nil, m)
	res, err := svc.Execute(context.Background())
	require.NoError(t, err)

	errs := search.Errors(res.Outcomes)
	require.Len(t, errs, 1)
	assert.Equal(t, search.KindUnsupported, errs[0].Kind)
	assert.NotContains(t, res.Report.FoundIocs, types.IocID(2))
}

func TestService_DepthLimitFailsRun(t *testing.T) {
	deep := types.IocEntry{DNSCheck: &types.DNSInfo{Data: []string{"evil.example"}}}
	for i := 0; i < 5; i++ {
		deep = types.IocEntry{Offspring: []types.IocEntry{deep}}
	}

	cfg := DefaultConfig()
	cfg.MaxDepth = 3
	sink := &captureSink{}
	svc := NewService(cfg, []iocstore.Source{staticSource{iocs: []types.Ioc{{ID: 9, Definition: deep}}}}, sink, newFakes().matchers())

	_, err := svc.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, flatten.ErrMaxDepthExceeded)
	assert.Empty(t, sink.reports)
}

func TestService_SourceAndSinkFailuresDegrade(t *testing.T) {
	sink := &captureSink{err: errors.New("upload refused")}
	svc := NewService(DefaultConfig(), []iocstore.Source{staticSource{err: errors.New("server down")}}, sink, newFakes().matchers())

	res, err := svc.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Report.FoundIocs)
	assert.EqualError(t, res.SinkErr, "upload refused")
	require.Len(t, sink.reports, 1)
}

func TestService_SharedAllocatorKeepsIdsUnique(t *testing.T) {
	alloc := flatten.NewAllocator()
	src := []iocstore.Source{staticSource{iocs: sampleIocs()}}

	first, err := NewService(DefaultConfig(), src, nil, newFakes().matchers(), WithAllocator(alloc)).Execute(context.Background())
	require.NoError(t, err)
	second, err := NewService(DefaultConfig(), src, nil, newFakes().matchers(), WithAllocator(alloc)).Execute(context.Background())
	require.NoError(t, err)

	for id := range second.Plan.Entries {
		_, clash := first.Plan.Entries[id]
		assert.False(t, clash, "entry id %d reused", id)
	}
	assert.Equal(t, first.Report.FoundIocs, second.Report.FoundIocs)
}

func TestService_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(DefaultConfig(), []iocstore.Source{staticSource{iocs: sampleIocs()}}, nil, newFakes().matchers())
	_, err := svc.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
