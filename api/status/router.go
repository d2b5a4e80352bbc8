// Package status serves the read-only HTTP API of the controller: its
// current state, the stored step records, the daily KPIs and the Prometheus
// metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/thermompc/core/metrics/daily"
	"github.com/kilianp07/thermompc/core/results"
)

// Options wires the handlers. Store, Daily and Gatherer may be nil, which
// disables the matching routes.
type Options struct {
	Tracker  *Tracker
	Store    results.Store
	Daily    daily.Store
	Gatherer prometheus.Gatherer
	// Token protects the /api routes with a bearer token when set.
	Token string
}

// NewRouter returns the API routes.
func NewRouter(o Options) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	if o.Tracker != nil {
		r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, o.Tracker.Snapshot())
		}).Methods(http.MethodGet)
	}
	api := r.PathPrefix("/api").Subrouter()
	api.Use(bearer(o.Token))
	if o.Store != nil {
		api.Handle("/results", resultsHandler(o.Store)).Methods(http.MethodGet)
		api.HandleFunc("/results/{cycleID}", func(w http.ResponseWriter, req *http.Request) {
			recs, err := o.Store.Query(req.Context(), results.Query{CycleID: mux.Vars(req)["cycleID"]})
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if len(recs) == 0 {
				http.Error(w, "cycle not found", http.StatusNotFound)
				return
			}
			writeJSON(w, recs)
		}).Methods(http.MethodGet)
	}
	if o.Daily != nil {
		api.Handle("/kpi/daily", dailyHandler(o.Daily)).Methods(http.MethodGet)
	}
	if o.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func bearer(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// timeParam parses an RFC3339 query parameter; a missing one is zero.
func timeParam(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func resultsHandler(store results.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q results.Query
		var err error
		if q.Start, err = timeParam(r, "start"); err != nil {
			http.Error(w, "bad start", http.StatusBadRequest)
			return
		}
		if q.End, err = timeParam(r, "end"); err != nil {
			http.Error(w, "bad end", http.StatusBadRequest)
			return
		}
		q.CycleID = r.URL.Query().Get("cycle_id")
		q.Band = r.URL.Query().Get("band")
		recs, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []results.StepRecord{}
		}
		writeJSON(w, recs)
	})
}

func dailyHandler(store daily.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := timeParam(r, "start")
		if err != nil {
			http.Error(w, "bad start", http.StatusBadRequest)
			return
		}
		end, err := timeParam(r, "end")
		if err != nil {
			http.Error(w, "bad end", http.StatusBadRequest)
			return
		}
		if end.IsZero() {
			end = time.Now()
		}
		recs, err := store.Query(start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []daily.Record{}
		}
		writeJSON(w, recs)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
