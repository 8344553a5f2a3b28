package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/keywords"
	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/pipeline"
	"github.com/FranksOps/rankwatch/internal/query"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/pkg/httpclient"
	"github.com/FranksOps/rankwatch/pkg/proxy"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

type checkOptions struct {
	input       string
	outputs     []string
	previous    string
	sheet       bool
	summaryJSON string
	summaryHTML string
}

func newCheckCmd(a *app) *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Look up ranks for every keyword in an input file",
		Example: `  rankwatch check -i keywords.xlsx -o keyword_ranks.xlsx
  rankwatch check -i keywords.csv -o today.xlsx --previous last_week.xlsx --sheet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "keyword file (.xlsx or .csv with a KW column)")
	f.StringSliceVarP(&opts.outputs, "output", "o", []string{"keyword_ranks.xlsx"}, "report file(s): .xlsx, .csv, .json or .db")
	f.StringVar(&opts.previous, "previous", "", "earlier report to compare against (file or sheet:<tab>)")
	f.BoolVar(&opts.sheet, "sheet", false, "also write the report to a new tab of the configured spreadsheet")
	f.StringVar(&opts.summaryJSON, "summary-json", "", "write the run summary as JSON to this file")
	f.StringVar(&opts.summaryHTML, "summary-html", "", "write the run summary as HTML to this file")
	_ = cmd.MarkFlagRequired("input")

	f.String("api-key", "", "SerpApi key (or RANKWATCH_API_KEY)")
	f.String("endpoint", serp.DefaultEndpoint, "search API endpoint")
	f.String("engine", "google", "search engine parameter")
	f.Int("num", 100, "results requested per keyword")
	f.String("hl", "en", "interface language")
	f.String("gl", "in", "country")
	f.String("google-domain", "google.co.in", "Google domain")
	f.String("device", "desktop", "device: desktop|mobile|tablet")
	f.Int("max-attempts", 5, "attempts per keyword, first included")
	f.Duration("retry-base", 2*time.Second, "base wait after a rate-limited attempt")
	f.Duration("retry-step", 2*time.Second, "extra wait per rate-limited attempt")
	f.Duration("retry-jitter", time.Second, "maximum random wait added to rate-limit backoff")
	f.Duration("error-delay", 2*time.Second, "wait before retrying any other failure")
	f.Duration("keyword-delay", 2*time.Second, "pause between keywords")
	f.Duration("timeout", 30*time.Second, "per-request timeout")
	f.Bool("exclude-official", true, "drop encyclopedia and government results before ranking")
	f.Bool("detect-snippets", false, "report featured snippet and People Also Ask ownership")
	f.String("match", string(analyzer.MatchContains), "domain match mode: contains|exact")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	f.String("sites", "", "sites file (default sites.yaml)")
	f.String("target", "", "target domain, overriding the sites file")
	f.String("proxies", "", "file of proxies to rotate search requests through, one per line")

	for key, flag := range map[string]string{
		config.KeyAPIKey:          "api-key",
		config.KeyEndpoint:        "endpoint",
		config.KeyEngine:          "engine",
		config.KeyResultCount:     "num",
		config.KeyLanguage:        "hl",
		config.KeyRegion:          "gl",
		config.KeyGoogleDomain:    "google-domain",
		config.KeyDevice:          "device",
		config.KeyMaxAttempts:     "max-attempts",
		config.KeyRetryBase:       "retry-base",
		config.KeyRetryStep:       "retry-step",
		config.KeyRetryJitter:     "retry-jitter",
		config.KeyErrorDelay:      "error-delay",
		config.KeyKeywordDelay:    "keyword-delay",
		config.KeyTimeout:         "timeout",
		config.KeyExcludeOfficial: "exclude-official",
		config.KeyDetectSnippets:  "detect-snippets",
		config.KeyMatchMode:       "match",
		config.KeyMetricsPort:     "metrics-port",
		config.KeySites:           "sites",
		config.KeyTarget:          "target",
		config.KeyProxies:         "proxies",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, opts checkOptions) error {
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	kws, err := keywords.Load(opts.input)
	if err != nil {
		return err
	}
	if len(kws) == 0 {
		return fmt.Errorf("%s contains no keywords", opts.input)
	}

	names := make([]string, 0, len(cfg.Competitors))
	for _, c := range cfg.Competitors {
		names = append(names, c.Name)
	}
	builder := report.Builder{
		TargetName:  cfg.Target.Name,
		Competitors: names,
		ResultCount: cfg.ResultCount,
		Snippets:    cfg.DetectSnippets,
	}

	targets := append([]string(nil), opts.outputs...)
	if opts.sheet {
		targets = append(targets, sheetPrefix)
	}
	so := sheetOptions{SpreadsheetID: cfg.SpreadsheetID, CredentialsFile: cfg.CredentialsFile}

	var prev *storage.Table
	if opts.previous != "" {
		if prev, err = loadTable(cmd.Context(), opts.previous, so, a.logger); err != nil {
			return err
		}
		if err := report.RequireColumns(prev, report.ColumnKeyword, builder.RankColumn()); err != nil {
			return fmt.Errorf("previous report %s: %w", opts.previous, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	con := newConsole(cmd.OutOrStdout(), cfg.ResultCount)
	pl, err := a.newPipeline(cfg, con)
	if err != nil {
		return err
	}

	start := time.Now()
	con.heading(fmt.Sprintf("Checking %d keywords for %s", len(kws), cfg.Target.Domain))
	res, runErr := pl.Run(ctx, kws)
	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		con.warning("interrupted after %d of %d keywords; writing partial report", len(res.Rows)+len(res.Failures), len(kws))
		// the interrupted context must not cancel the export
		ctx = context.WithoutCancel(ctx)
	}

	table := builder.Build(res.Rows)

	var deltas []report.Delta
	if prev != nil {
		if table, deltas, err = report.Compare(table, prev, builder.RankColumn()); err != nil {
			return err
		}
		con.heading("Changes since " + opts.previous)
		con.changes(deltas)
	}

	if err := saveTable(ctx, table, targets, so, a.logger); err != nil {
		return err
	}
	a.logger.Info("report written", "run_id", table.RunID, "targets", targets, "rows", len(table.Rows))

	summary := report.GenerateSummary(res.Rows, res.FailedKeywords(), deltas)
	summary.TotalKeywords = len(kws)
	summary.RunID = table.RunID
	summary.Target = cfg.Target.Domain
	summary.StartTime = start
	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(start).Round(time.Second)

	fmt.Fprintln(cmd.OutOrStdout())
	if err := report.WriteText(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	if err := writeSummaryFiles(summary, opts.summaryJSON, opts.summaryHTML); err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		con.warning("%d keyword(s) failed and were left out of the report", len(res.Failures))
	}
	return runErr
}

func (a *app) newPipeline(cfg *config.Config, con *console) (*pipeline.Pipeline, error) {
	hc := httpclient.Config{Timeout: cfg.Timeout}
	if cfg.ProxiesFile != "" {
		pool := proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.ProxiesFile); err != nil {
			return nil, err
		}
		if pool.Len() == 0 {
			return nil, fmt.Errorf("proxy file %s lists no proxies", cfg.ProxiesFile)
		}
		a.logger.Info("rotating search requests through proxies", "count", pool.Len())
		hc.Proxies = pool
	}
	client, err := httpclient.New(hc)
	if err != nil {
		return nil, err
	}

	provider, err := serp.NewSerpAPI(serp.SerpAPIConfig{
		Endpoint:     cfg.Endpoint,
		APIKey:       cfg.APIKey,
		Engine:       cfg.Engine,
		Num:          cfg.ResultCount,
		Language:     cfg.Language,
		Region:       cfg.Region,
		GoogleDomain: cfg.GoogleDomain,
		Device:       cfg.Device,
		MaxAttempts:  cfg.MaxAttempts,
		RateLimitBackoff: ratelimit.Backoff{
			Base:   cfg.RetryBase,
			Step:   cfg.RetryStep,
			Jitter: cfg.RetryJitter,
		},
		ErrorDelay: cfg.ErrorDelay,
		Client:     client,
		Observer:   con,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Provider:        provider,
		Target:          cfg.Target,
		Competitors:     cfg.Competitors,
		Classifier:      analyzer.NewClassifier(cfg.OfficialPatterns),
		ExcludeOfficial: cfg.ExcludeOfficial,
		Disambiguator:   query.NewDisambiguator(cfg.AmbiguousQueries),
		DetectSnippets:  cfg.DetectSnippets,
		MatchMode:       cfg.MatchMode,
		Pacer:           ratelimit.NewPacer(cfg.KeywordDelay, 0),
		Observer:        con,
		Logger:          a.logger,
	})
}
