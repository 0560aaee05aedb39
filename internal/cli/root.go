// Package cli wires settings, IOC sources, matchers and sinks into the
// ferret-ioc command.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/collector"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/config"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/iocstore"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/output"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/report"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/scan"
	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

type runOptions struct {
	local      bool
	raw        bool
	quiet      bool
	verbose    bool
	deep       bool
	configPath string

	disFile, disReg, disDNS, disConn, disProc, disMutex, disCert bool
}

// NewRoot builds the root command
func NewRoot(version string) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:           "ferret-ioc [ioc-files...]",
		Short:         "ferret-ioc: endpoint IOC scanning probe",
		Long:          "Loads IOC definitions from files and/or the IOC server, searches this host for them and reports the confirmed IOCs.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, version, opts, args)
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate("ferret-ioc {{.Version}}\n")

	f := cmd.Flags()
	f.BoolVarP(&opts.local, "local", "l", false, "Skip the IOC server: read IOC files only and write the report locally")
	f.BoolVarP(&opts.raw, "raw", "r", false, "Print the report as JSON instead of the console summary")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Print nothing but errors; the report is still delivered")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log to the console and show partial matches")
	f.BoolVar(&opts.deep, "deep", false, "Enable deep file and registry search (overrides deep_search)")
	f.StringVarP(&opts.configPath, "config", "c", "", "Settings file (default settings.toml next to the working directory or executable)")
	f.BoolVar(&opts.disFile, "dis-file", false, "Disable file search")
	f.BoolVar(&opts.disReg, "dis-reg", false, "Disable registry search")
	f.BoolVar(&opts.disDNS, "dis-dns", false, "Disable DNS cache search")
	f.BoolVar(&opts.disConn, "dis-conn", false, "Disable connection search")
	f.BoolVar(&opts.disProc, "dis-proc", false, "Disable process search")
	f.BoolVar(&opts.disMutex, "dis-mutex", false, "Disable mutex search")
	f.BoolVar(&opts.disCert, "dis-cert", false, "Disable certificate search")
	cmd.MarkFlagsMutuallyExclusive("quiet", "verbose")

	return cmd
}

// disabled maps the --dis-* flags to modalities
func (o *runOptions) disabled() map[search.Modality]bool {
	return map[search.Modality]bool{
		search.File:        o.disFile,
		search.Registry:    o.disReg,
		search.DNS:         o.disDNS,
		search.Connection:  o.disConn,
		search.Process:     o.disProc,
		search.Mutex:       o.disMutex,
		search.Certificate: o.disCert,
	}
}

func scanConfig(s *config.Settings, o *runOptions) scan.Config {
	cfg := scan.DefaultConfig()
	cfg.MaxDepth = s.MaxDepth
	cfg.MaxIocs = s.MaxIocs
	cfg.Parallel = s.Parallel
	cfg.Disabled = o.disabled()
	return cfg
}

func collectorOptions(s *config.Settings, o *runOptions) collector.Options {
	return collector.Options{
		DeepSearch:    s.DeepSearch || o.deep,
		SearchRoots:   s.SearchRoots,
		RegistryHives: s.RegistryHives,
		RegexTimeout:  s.RegexTimeout,
	}
}

// endpoints builds the IOC sources and the report sink. The returned file
// sink is the one reports land in when the server is skipped or unreachable.
func endpoints(s *config.Settings, o *runOptions, files []string) ([]iocstore.Source, iocstore.Sink, *iocstore.FileSink) {
	var sources []iocstore.Source
	if len(files) > 0 {
		sources = append(sources, &iocstore.FileSource{Paths: files})
	}
	fileSink := &iocstore.FileSink{Dir: s.ReportDir}
	if o.local {
		return sources, fileSink, fileSink
	}

	client := iocstore.NewClient(s.Server, s.ProbeName, s.AuthKey, s.HTTPTimeout, s.HTTPRetries)
	sources = append(sources, &iocstore.HTTPSource{Client: client, Hours: s.FetchHours})
	sink := &iocstore.FallbackSink{Primary: &iocstore.HTTPSink{Client: client}, Fallback: fileSink}
	return sources, sink, fileSink
}

func run(ctx context.Context, cmd *cobra.Command, version string, o *runOptions, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, settingsErr := config.Load(o.configPath)

	level := settings.LogLevel
	if o.verbose {
		level = "debug"
	}
	if err := logger.Init(settings.LogDir, logger.Options{Level: level, Console: o.verbose && !o.raw, File: true}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	defer logger.Close()
	if settingsErr != nil {
		logger.Warn("Using default settings: %v", settingsErr)
	}

	out := output.NewWithWriter(output.Options{Raw: o.raw, Quiet: o.quiet, Verbose: o.verbose}, cmd.OutOrStdout())
	mode := "server " + settings.Server
	if o.local {
		mode = "local"
	}
	out.PrintHeader(version, mode)

	sources, sink, fileSink := endpoints(settings, o, files)
	if len(sources) == 0 {
		out.PrintError("no IOC files given in local mode")
		logger.Warn("Local mode without IOC files, nothing to scan")
	}

	progress := make(chan scan.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			if p.Done {
				out.PrintDetail("%s", p.Detail)
				continue
			}
			if p.Detail == "" {
				out.PrintStep(p.Step, p.Total, p.StepName)
			} else {
				out.PrintDetail("%s: %s", p.StepName, p.Detail)
			}
		}
	}()

	svc := scan.NewService(
		scanConfig(settings, o),
		sources,
		sink,
		scan.DefaultMatchers(collectorOptions(settings, o)),
		scan.WithProgress(progress),
	)
	result, err := svc.Execute(ctx)
	close(progress)
	<-done
	if err != nil {
		out.PrintError("%v", err)
		return err
	}

	out.PrintSummary(result.Report, report.Group(result.Report, result.Iocs), len(result.Iocs), result.Duration)
	if err := out.PrintRaw(result.Report); err != nil {
		return err
	}
	switch {
	case result.SinkErr != nil:
		out.PrintDelivery(sink.Name(), result.SinkErr)
	case fileSink.Path() != "":
		out.PrintDelivery(fileSink.Path(), nil)
	default:
		out.PrintDelivery(settings.Server, nil)
	}

	if settings.MetricsFile != "" {
		if err := svc.Recorder().WriteTextfile(settings.MetricsFile); err != nil {
			logger.Warn("%v", err)
		}
	}
	return nil
}
