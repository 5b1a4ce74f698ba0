package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/reconcile"
	"github.com/j2kenton/apptrack/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local HTTP API over the tracked applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := newServeMux(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newServeMux(env *appEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := env.Store.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status})
	})

	mux.HandleFunc("GET /records", func(w http.ResponseWriter, r *http.Request) {
		filter := store.RecordFilter{Company: r.URL.Query().Get("company")}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err := model.ParseStatus(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			filter.Status = status
		}
		records, err := env.Store.ListRecords(r.Context(), filter)
		if err != nil {
			zap.L().Error("list records failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	mux.HandleFunc("GET /records/{id}", func(w http.ResponseWriter, r *http.Request) {
		record, err := env.Store.GetRecord(r.Context(), r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
			return
		}
		writeJSON(w, http.StatusOK, record)
	})

	mux.HandleFunc("GET /records/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		history, err := env.Store.GetStatusHistory(r.Context(), r.PathValue("id"))
		if err != nil {
			zap.L().Error("get history failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history failed"})
			return
		}
		writeJSON(w, http.StatusOK, history)
	})

	// Merge accepts a batch of pre-normalized observations, reconciles
	// them against the stored records, and persists the outcome. This is
	// the webhook path for callers that ingest mail themselves.
	mux.HandleFunc("POST /merge", func(w http.ResponseWriter, r *http.Request) {
		var observations []model.Observation
		if err := json.NewDecoder(r.Body).Decode(&observations); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		candidates, err := env.Store.ListRecords(r.Context(), store.RecordFilter{})
		if err != nil {
			zap.L().Error("list records failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
			return
		}

		result, err := env.Engine.Merge(r.Context(), observations, nil, candidates)
		if err != nil {
			if eris.Is(err, reconcile.ErrNoObservations) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one observation is required"})
				return
			}
			zap.L().Error("merge failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "merge failed"})
			return
		}

		if result.Created {
			err = env.Store.CreateRecord(r.Context(), result.Record)
		} else {
			err = env.Store.UpdateRecord(r.Context(), result.Record)
		}
		if err == nil {
			err = env.Store.ReplaceStatusHistory(r.Context(), result.Record.ID, result.Report.History)
		}
		if err != nil {
			zap.L().Error("persist merge failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "persist failed"})
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
