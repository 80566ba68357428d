package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/infinitech/infinitask/internal/board"
	"github.com/infinitech/infinitask/internal/config"
	"github.com/infinitech/infinitask/internal/eventbus"
	"github.com/infinitech/infinitask/internal/pushnotification"
	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/pkg/cerr"
	"github.com/infinitech/infinitask/pkg/clog"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// TaskBoard is the read side of a running board exposed over HTTP.
type TaskBoard interface {
	List(f task.Filter, page, perPage int) ([]task.Task, int, int)
	Summary() task.Summary
	Status() board.Status
	Healthy() bool
	RequestRefresh()
}

// EventJournal reads back the events recorded for one day.
type EventJournal interface {
	Read(ctx context.Context, day time.Time) ([]*eventbus.Event, error)
}

type Server struct {
	mu          sync.Mutex
	server      *http.Server
	closed      bool
	env         *config.Env
	board       TaskBoard
	journal     EventJournal
	pushHandler *pushnotification.Handler
}

// NewServer wires the HTTP surface. journal and pushHandler may be nil, which
// leaves their routes out.
func NewServer(env *config.Env, b TaskBoard, journal EventJournal, pushHandler *pushnotification.Handler) *Server {
	return &Server{
		env:         env,
		board:       b,
		journal:     journal,
		pushHandler: pushHandler,
	}
}

// Handler builds the full HTTP handler: REST routes, health checks, CORS,
// h2c and the API key check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Get("/tasks", s.listTasks)
		r.Get("/stats", s.stats)
		r.Get("/status", s.status)
		r.Post("/refresh", s.refresh)
		if s.journal != nil {
			r.Get("/events", s.events)
		}
		if s.pushHandler != nil {
			r.Route("/push", s.pushHandler.Routes)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(&boardChecker{board: s.board}, connect.WithInterceptors(s.interceptors()...)))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe serves until Shutdown. ctx becomes the base context of
// every request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.InfoContext(ctx, "starting server", "addr", addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// boardChecker reports NOT_SERVING while the task list is stale.
type boardChecker struct {
	board TaskBoard
}

func (c *boardChecker) Check(_ context.Context, req *grpchealth.CheckRequest) (*grpchealth.CheckResponse, error) {
	if req.Service != "" && req.Service != "infinitask.Monitor" {
		return nil, connect.NewError(connect.CodeNotFound, nil)
	}
	if c.board.Healthy() {
		return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
	}
	return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.APIKey == "" || r.Method == http.MethodOptions ||
			r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type listTasksResponse struct {
	Tasks   []task.Task `json:"tasks"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Pages   int         `json:"pages"`
	Total   int         `json:"total"`
}

func (s *Server) listTasks(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	verr := cerr.NewError(cerr.InvalidArgument, "invalid query", nil)

	var f task.Filter
	if v := q.Get("status"); v != "" {
		f.Status = task.ParseStatus(v)
		if f.Status == task.StatusUnknown {
			verr.AddViolation("status", "must be one of pending, complete, overdue, canceled")
		}
	}
	if v := q.Get("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			verr.AddViolation("archived", "must be a boolean")
		}
		f.Archived = &archived
	}
	page := intParam(q.Get("page"), 1)
	if page < 1 {
		verr.AddViolation("page", "must be a positive integer")
	}
	perPage := intParam(q.Get("per_page"), defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		verr.AddViolation("per_page", "must be between 1 and "+strconv.Itoa(maxPerPage))
	}
	if len(verr.Details) > 0 {
		cerr.SetJSONError(ctx, verr)
		return
	}

	items, pages, total := s.board.List(f, page, perPage)
	if items == nil {
		items = []task.Task{}
	}
	cerr.SetJSONResponse(ctx, listTasksResponse{
		Tasks:   items,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
		Total:   total,
	})
}

// intParam returns def for an empty value and -1 for a malformed one.
func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func (s *Server) stats(_ http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.board.Summary())
}

func (s *Server) status(_ http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.board.Status())
}

func (s *Server) refresh(_ http.ResponseWriter, r *http.Request) {
	s.board.RequestRefresh()
	cerr.SetJSONStatus(r.Context(), http.StatusAccepted)
	cerr.SetJSONResponse(r.Context(), map[string]string{"status": "refresh requested"})
}

// events lists the journal of one day, given as ?date=YYYY-MM-DD in the
// configured zone. Today when omitted.
func (s *Server) events(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc, err := s.env.Location()
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Internal, "invalid timezone", err)
		return
	}
	day := time.Now().In(loc)
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "invalid query", err).
				AddViolation("date", "must be formatted as YYYY-MM-DD"))
			return
		}
		day = d
	}
	events, err := s.journal.Read(ctx, day)
	if err != nil {
		cerr.SetJSONError(ctx, cerr.WrapStorageReadError("event journal", err))
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"date": day.Format(time.DateOnly), "events": events})
}
