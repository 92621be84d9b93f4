package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/abhisek/quandary/internal/llm"
	"github.com/abhisek/quandary/internal/logging"
	"github.com/abhisek/quandary/internal/module"
	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
	"github.com/abhisek/quandary/internal/resolver"
	"github.com/abhisek/quandary/internal/store"
)

var solveCmd = &cobra.Command{
	Use:   "solve <graph.yaml>",
	Short: "Resolve a question graph and print the root's answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategyName, _ := cmd.Flags().GetString("strategy")
		maxConcurrency, _ := cmd.Flags().GetInt("max-concurrency")
		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		decompose, _ := cmd.Flags().GetBool("decompose")
		stream, _ := cmd.Flags().GetBool("stream")
		verbose, _ := cmd.Flags().GetBool("verbose")
		noStore, _ := cmd.Flags().GetBool("no-store")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		templatesDir, _ := cmd.Flags().GetString("templates")
		extras, _ := cmd.Flags().GetStringArray("extra")

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

		ctx := cmd.Context()

		root, err := question.Load(args[0])
		if err != nil {
			return fmt.Errorf("load question graph: %w", err)
		}

		var strategy resolver.Strategy
		switch strategyName {
		case "parallel":
			strategy = resolver.NewParallel()
		case "serial":
			strategy = resolver.NewSerial()
		default:
			return fmt.Errorf("unknown strategy %q (want parallel or serial)", strategyName)
		}

		runID := uuid.NewString()
		processors := []pipeline.Processor{}
		if stream {
			processors = append(processors, pipeline.NewStreamProcessor(os.Stdout))
		} else {
			processors = append(processors, pipeline.NewLogProcessor(logger))
		}

		var eventRepo store.EventRepo
		if !noStore {
			dbPath, err := resolveDBPath(cmd)
			if err != nil {
				return fmt.Errorf("resolve database path: %w", err)
			}
			st, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer st.Close()
			eventRepo = st.EventRepo()

			recorder := store.NewRunRecorder(runID, root, strategyName, st, logger)
			if err := recorder.Start(ctx); err != nil {
				return fmt.Errorf("record run: %w", err)
			}
			processors = append(processors, recorder)
		}

		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			processors = append(processors, pipeline.NewMetricsProcessor(reg))
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			go func() {
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					logger.Warn("metrics server stopped", "err", err)
				}
			}()
			logger.Info("serving metrics", "addr", metricsAddr)
		}

		provider, err := llm.NewProviderFromEnv(ctx, eventRepo)
		if err != nil {
			return fmt.Errorf("configure LLM provider: %w", err)
		}

		templates := module.NewTemplates(templatesDir)
		moduleCfg := module.DefaultConfig()
		outputs := pipeline.NewOutputMap()
		answerer := module.NewAnswerModule(provider, templates, outputs, moduleCfg)

		resolverOpts := []resolver.Option{
			resolver.WithStrategy(strategy),
			resolver.WithProcessors(processors...),
			resolver.WithOutputs(outputs),
			resolver.WithLogger(logger),
		}
		if decompose {
			resolverOpts = append(resolverOpts,
				resolver.WithDecomposer(module.NewDecomposeModule(provider, templates, moduleCfg)))
		}
		if len(extras) > 0 {
			fetcher, err := module.NewFileFetcher(extras)
			if err != nil {
				return err
			}
			resolverOpts = append(resolverOpts, resolver.WithFetchers(fetcher))
		}
		r := resolver.New(answerer, resolverOpts...)

		ctx = llm.WithRunID(ctx, runID)
		answer, err := r.Solve(ctx, root, resolver.Options{
			MaxConcurrency: maxConcurrency,
			MaxDepth:       maxDepth,
			Timeout:        timeout,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, styleError.Render("resolution failed: "+err.Error()))
			return err
		}

		fmt.Println(styleHeading.Render(root.Body))
		fmt.Println(styleAnswer.Render(answer))
		fmt.Println(styleDim.Render("run " + runID))
		return nil
	},
}

func init() {
	solveCmd.Flags().String("strategy", "parallel", "Resolution strategy: parallel or serial")
	solveCmd.Flags().Int("max-concurrency", resolver.DefaultMaxConcurrency, "Maximum simultaneous LLM calls")
	solveCmd.Flags().Int("max-depth", resolver.DefaultMaxDepth, "Maximum decomposition depth")
	solveCmd.Flags().Duration("timeout", 5*time.Minute, "Overall run deadline (0 = none)")
	solveCmd.Flags().Bool("decompose", false, "Let the LLM split questions into sub-questions")
	solveCmd.Flags().Bool("stream", false, "Print each answer as it arrives")
	solveCmd.Flags().BoolP("verbose", "v", false, "Debug logging")
	solveCmd.Flags().Bool("no-store", false, "Skip persisting the run to the database")
	solveCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	solveCmd.Flags().String("templates", "", "Directory of prompt template overrides")
	solveCmd.Flags().StringArray("extra", nil, "Reference file for answers, as key=path (repeatable)")
}
