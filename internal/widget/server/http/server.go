package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bestk/zeeho-widgets/internal/pkg/metrics"
	mw "github.com/bestk/zeeho-widgets/internal/pkg/middleware/http"
	"github.com/bestk/zeeho-widgets/internal/telemetry/poller"
	"github.com/bestk/zeeho-widgets/pkg/log"
	"github.com/bestk/zeeho-widgets/pkg/options"
)

const apiPrefix = "/api/v1"

// Source is the poller view the API serves.
type Source interface {
	Latest() *poller.Snapshot
	Status() poller.Status
	Refresh()
	Subscribe() (<-chan poller.Event, func())
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	source  Source
}

func NewServer(opts *options.HttpOptions, src Source) *Server {
	s := &Server{
		options: opts,
		source:  src,
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(mw.RequestID)

	// Liveness: the process is serving.
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Readiness: at least one snapshot has been published.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.source.Latest() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no data yet"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Handle(apiPrefix+"/vehicle", mw.Timeout(http.HandlerFunc(s.getVehicle))).Methods(http.MethodGet)
	r.Handle(apiPrefix+"/status", mw.Timeout(http.HandlerFunc(s.getStatus))).Methods(http.MethodGet)
	r.Handle(apiPrefix+"/refresh", mw.Timeout(http.HandlerFunc(s.postRefresh))).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/events", s.streamEvents).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http listen on %s: %w", s.server.Addr, err)
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type vehicleResponse struct {
	*poller.Snapshot
	State poller.State `json:"state"`
	// Stale is set while the poller is backing off after a failure.
	Stale bool `json:"stale"`
}

type statusResponse struct {
	State       poller.State `json:"state"`
	LastError   string       `json:"lastError,omitempty"`
	Failures    int          `json:"failures"`
	LastSuccess *time.Time   `json:"lastSuccess,omitempty"`
	NextAttempt *time.Time   `json:"nextAttempt,omitempty"`
}

type errorResponse struct {
	Error string       `json:"error"`
	State poller.State `json:"state,omitempty"`
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Latest()
	state := s.source.Status().State
	if snap == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no data yet", State: state})
		return
	}
	writeJSON(w, http.StatusOK, vehicleResponse{
		Snapshot: snap,
		State:    state,
		Stale:    state == poller.StateBackoff,
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(s.source.Status()))
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	s.source.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// streamEvents pushes a "snapshot" or "error" server-sent event after every
// poll cycle until the client goes away or the poller stops.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	events, cancel := s.source.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if snap := s.source.Latest(); snap != nil {
		writeEvent(w, "snapshot", snap)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Err != nil {
				writeEvent(w, "error", errorResponse{Error: ev.Err.Error(), State: ev.State})
			} else {
				writeEvent(w, "snapshot", ev.Snapshot)
			}
			flusher.Flush()
		}
	}
}

func toStatusResponse(st poller.Status) statusResponse {
	resp := statusResponse{State: st.State, Failures: st.Failures}
	if st.LastError != nil {
		resp.LastError = st.LastError.Error()
	}
	if !st.LastSuccess.IsZero() {
		resp.LastSuccess = &st.LastSuccess
	}
	if !st.NextAttempt.IsZero() {
		resp.NextAttempt = &st.NextAttempt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to write response", "error", err)
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("Failed to encode event", "event", name, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
