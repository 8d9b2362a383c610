package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	backendbridge "github.com/opengovern/backend-bridge"
	"github.com/opengovern/backend-bridge/adapters"
	"github.com/opengovern/backend-bridge/eventbridge"
	"github.com/opengovern/backend-bridge/internal/logger"
	"github.com/opengovern/backend-bridge/mock"
	"github.com/opengovern/backend-bridge/telemetry"
)

type app struct {
	configPath  string
	useMock     bool
	substitute  bool
	metricsAddr string

	cfg   *backendbridge.Config
	instr backendbridge.Instrumenter
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	a := &app{}
	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Talk to the dashboard backend and its event bus through backend-bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("BRIDGE_CONFIG"), "YAML config file (env BRIDGE_CONFIG)")
	root.PersistentFlags().BoolVar(&a.useMock, "mock", false, "answer calls from the in-process mock backend")
	root.PersistentFlags().BoolVar(&a.substitute, "substitute", false, "send traffic to the substitute backend")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")

	root.AddCommand(a.healthCmd(), a.callCmd(), a.metricsCmd(), a.tailCmd(), a.publishCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) setup() error {
	cfg, err := backendbridge.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.substitute {
		cfg.Backend.UseSubstitute = true
	}
	a.cfg = cfg
	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "bridgectl"})

	reg := prometheus.NewRegistry()
	prom, err := telemetry.NewPrometheus(reg)
	if err != nil {
		return err
	}
	a.instr = backendbridge.MultiInstrumenter{backendbridge.NewLogInstrumenter(nil), prom}

	if a.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(a.metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.L().Error("metrics server stopped", logger.Err(err))
			}
		}()
	}
	return nil
}

func (a *app) bridge() (*backendbridge.Bridge, error) {
	if a.useMock {
		opts := []backendbridge.Option{
			backendbridge.WithInstrumenter(a.instr),
			backendbridge.WithSelector(backendbridge.NewConfigSelector("mock://backend", "mock://backend", false)),
		}
		return backendbridge.New(*a.cfg, mockBackend(), opts...)
	}

	var httpOpts []adapters.HTTPOption
	if oc := a.cfg.Backend.OAuth; oc.TokenURL != "" {
		httpOpts = append(httpOpts, adapters.WithTokenSource(adapters.ClientCredentials(context.Background(), oc)))
	}
	return backendbridge.New(*a.cfg, adapters.NewHTTPAdapter(httpOpts...), backendbridge.WithInstrumenter(a.instr))
}

// mockBackend answers the probes and echoes everything else.
func mockBackend() *mock.MockAdapter {
	m := mock.New()
	m.Handle(http.MethodGet, "/health", func(*backendbridge.NormalizedRequest) mock.Outcome {
		return mock.JSON(200, fmt.Sprintf(`{"status":"ok","bus":{"connected":true},"timestamp":%d}`, time.Now().UnixMilli()))
	})
	m.Handle(http.MethodGet, "/metrics", func(*backendbridge.NormalizedRequest) mock.Outcome {
		return mock.JSON(200, `{"throughput":12.5,"latency_ms":40,"error_rate":0.01}`)
	})
	return m
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the selected backend's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.bridge()
			if err != nil {
				return err
			}
			st := b.Health(cmd.Context())
			out := map[string]any{
				"backend":              st.Backend,
				"status":               st.Status,
				"consecutive_failures": st.ConsecutiveFailures,
				"last_checked":         st.LastChecked.Format(time.RFC3339),
			}
			if st.Report != nil {
				out["report"] = st.Report
				if at := st.Report.ReportedAt(); !at.IsZero() {
					out["reported_at"] = at.Format(time.RFC3339)
				}
			}
			if st.Err != nil {
				out["error"] = st.Err.UserMessage()
				out["error_kind"] = st.Err.Kind
			}
			return printJSON(out)
		},
	}
}

func (a *app) callCmd() *cobra.Command {
	var (
		body      string
		query     []string
		tenant    string
		operation string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call METHOD PATH",
		Short: "Send one request through the resilient client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.bridge()
			if err != nil {
				return err
			}
			opts := []backendbridge.CallOption{
				backendbridge.WithClient("bridgectl"),
				backendbridge.WithOperation(operation),
				backendbridge.WithTenant(tenant),
				backendbridge.WithQuery(parseQuery(query)),
			}
			if body != "" {
				opts = append(opts, backendbridge.WithBody(json.RawMessage(body)))
			}
			if timeout > 0 {
				opts = append(opts, backendbridge.WithTimeout(timeout))
			}
			resp, err := b.Call(cmd.Context(), args[0], args[1], opts...)
			if err != nil {
				nerr := backendbridge.AsNormalized(err)
				return fmt.Errorf("%s (%s)", nerr.UserMessage(), nerr.Kind)
			}
			return printJSON(resp.Body)
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "JSON request body")
	cmd.Flags().StringSliceVar(&query, "query", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id for instrumentation")
	cmd.Flags().StringVar(&operation, "operation", "cli_call", "logical operation name")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout override")
	return cmd
}

func (a *app) metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backend-metrics",
		Short: "Fetch the backend's /metrics probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.bridge()
			if err != nil {
				return err
			}
			m, err := b.Metrics(cmd.Context(), backendbridge.WithClient("bridgectl"))
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
}

func (a *app) tailCmd() *cobra.Command {
	var topics []string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Subscribe to the bus and print locally broadcast events",
		RunE: func(cmd *cobra.Command, args []string) error {
			connector, err := eventbridge.NewRedisConnector(a.cfg.Bus.URL)
			if err != nil {
				return err
			}
			defer connector.Close()

			ebCfg, err := eventbridge.FromConfig(a.cfg.Bus)
			if err != nil {
				return err
			}
			eb, err := eventbridge.New(ebCfg, connector, eventbridge.WithInstrumenter(a.instr))
			if err != nil {
				return err
			}

			if len(topics) == 0 {
				for _, r := range eb.Mapper().Rules() {
					topics = append(topics, r.Topic)
				}
				topics = append(topics, eventbridge.UnknownTopic)
			}
			merged := make(chan eventbridge.Event, 64)
			for _, t := range topics {
				sub, err := eb.Subscribe(t, 64)
				if err != nil {
					return err
				}
				go func(s *eventbridge.Subscription) {
					for ev := range s.C {
						merged <- ev
					}
				}(sub)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			eb.Start(ctx)
			defer eb.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-merged:
					if err := printJSON(map[string]any{
						"topic":       ev.Topic,
						"event_type":  ev.Type,
						"payload":     ev.Payload,
						"subject":     ev.Subject,
						"received_at": ev.ReceivedAt.Format(time.RFC3339Nano),
					}); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "local topic to print (repeatable, default all mapped topics)")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish SUBJECT TYPE DATA",
		Short: "Publish a test event on the bus",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if err := json.Unmarshal([]byte(args[2]), &data); err != nil {
				return fmt.Errorf("DATA must be JSON: %w", err)
			}
			payload, err := eventbridge.Encode(args[1], data)
			if err != nil {
				return err
			}
			connector, err := eventbridge.NewRedisConnector(a.cfg.Bus.URL)
			if err != nil {
				return err
			}
			defer connector.Close()
			return connector.Publish(cmd.Context(), args[0], payload)
		},
	}
}

func parseQuery(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, _ := strings.Cut(p, "=")
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
