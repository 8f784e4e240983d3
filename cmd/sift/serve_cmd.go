package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"pkt.systems/sift"
	"pkt.systems/sift/api"
	"pkt.systems/sift/fql"
	"pkt.systems/sift/store"
)

func newServeCommand(baseLogger pslog.Logger) *cobra.Command {
	var (
		listen           string
		metricsListen    string
		pprofListen      string
		profilingMetrics bool
		otelEndpoint     string
		bootstrap        bool
	)
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the query API over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := cliLogger(baseLogger)

			telemetry, err := setupTelemetry(ctx, telemetryConfig{
				otelEndpoint:     otelEndpoint,
				metricsListen:    metricsListen,
				pprofListen:      pprofListen,
				profilingMetrics: profilingMetrics,
			}, logger.With("sys", "telemetry"))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = telemetry.Shutdown(shutdownCtx)
			}()

			ss, cleanup, err := openSearchStore(logger, bootstrap)
			if err != nil {
				return err
			}
			defer cleanup()

			var handler http.Handler = newQueryHandler(ss, logger.With("sys", "http"))
			if telemetry.TracingEnabled() {
				handler = otelhttp.NewHandler(handler, "sift.http",
					otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents))
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			srv := &http.Server{
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("serve.listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", ":8462", "HTTP listen address")
	flags.StringVar(&metricsListen, "metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	flags.StringVar(&pprofListen, "pprof-listen", "", "pprof listen address (empty disables)")
	flags.BoolVar(&profilingMetrics, "enable-profiling-metrics", false, "expose Go runtime metrics on the Prometheus endpoint")
	flags.StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP trace collector endpoint (e.g. grpc://localhost:4317)")
	flags.BoolVar(&bootstrap, "bootstrap", true, "populate the index from the store on startup if it is empty")
	return cmd
}

// queryResponse is the JSON body returned by /v1/query/{entity}.
type queryResponse struct {
	Records []recordOut `json:"records"`
	Total   *int64      `json:"total,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newQueryHandler(ss *sift.SearchStore, logger pslog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /v1/query/{entity}", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(ss, logger, w, r)
	})
	return mux
}

func handleQuery(ss *sift.SearchStore, logger pslog.Logger, w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	params := r.URL.Query()

	filter, err := fql.Parse(params.Get("filter"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	sortSpec, err := fql.ParseSort(params.Get("sort"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	q := store.Query{Entity: entity, Filter: filter, Sort: sortSpec}

	var page api.Page
	var paged bool
	if raw := params.Get("offset"); raw != "" {
		page.Offset, err = strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("parse offset: %w", err))
			return
		}
		paged = true
	}
	if raw := params.Get("limit"); raw != "" {
		page.Limit, err = strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("parse limit: %w", err))
			return
		}
		paged = true
	}
	if raw := params.Get("totals"); raw != "" {
		page.WantTotal, err = strconv.ParseBool(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("parse totals: %w", err))
			return
		}
		paged = paged || page.WantTotal
	}
	if paged {
		q.Page = &page
	}

	ctx := r.Context()
	tx, err := ss.BeginRead(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	defer tx.Close()

	res, err := tx.LoadObjects(ctx, q)
	if err != nil {
		var terr *api.TranslationError
		if errors.As(err, &terr) {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		logger.Error("http.query.failed", "entity", entity, "error", err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	resp := queryResponse{Records: make([]recordOut, 0, len(res.Records)), Total: res.Total}
	for _, rec := range res.Records {
		resp.Records = append(resp.Records, recordOut{ID: rec.ID, Doc: rec.Doc})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Debug("http.query.write_failed", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}
