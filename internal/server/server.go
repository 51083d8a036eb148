// Package server exposes the analysis engine over HTTP for editor
// integrations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlsense/internal/metadata"
	"github.com/leapstack-labs/sqlsense/pkg/catalog"
	"github.com/leapstack-labs/sqlsense/pkg/completion"
	"github.com/leapstack-labs/sqlsense/pkg/fkgraph"
	"github.com/leapstack-labs/sqlsense/pkg/parser"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// Reloader is implemented by metadata providers whose schema can be
// refreshed in place while the server runs.
type Reloader interface {
	Reload(path string) error
}

// Config holds the server's collaborators.
type Config struct {
	Addr         string
	Provider     catalog.Provider
	Engine       *completion.Engine
	ParseOptions parser.Options
	MaxJoinDepth int

	// Watch re-loads SchemaFile on change when the provider supports it.
	Watch      bool
	SchemaFile string

	Logger *slog.Logger
}

// Server serves parse, completion and join-suggestion requests.
type Server struct {
	cfg     Config
	session *metadata.Session
	log     *slog.Logger
}

// New creates a server. A nil logger discards.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:     cfg,
		session: metadata.NewSession(log),
		log:     log,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	r.Post("/v1/parse", s.handleParse)
	r.Post("/v1/complete", s.handleComplete)
	r.Post("/v1/joins", s.handleJoins)
	r.Get("/v1/health", s.handleHealth)
	return r
}

// Serve starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("starting server", "addr", s.cfg.Addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	reloader, canReload := s.cfg.Provider.(Reloader)
	if s.cfg.Watch && canReload && s.cfg.SchemaFile != "" {
		eg.Go(func() error {
			return s.watchSchema(egctx, reloader)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.log.Debug("shutting down server")
		s.session.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

type parseRequest struct {
	SQL string `json:"sql"`
}

type parseResponse struct {
	Statements []statementView           `json:"statements"`
	TempTables map[string]*tempTableView `json:"temp_tables,omitempty"`
}

type statementView struct {
	Type       string            `json:"type"`
	Batch      int               `json:"batch"`
	Tables     []tableView       `json:"tables,omitempty"`
	Columns    []columnView      `json:"columns,omitempty"`
	Parameters []string          `json:"parameters,omitempty"`
	Clauses    map[string]string `json:"clauses,omitempty"`
}

type tableView struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

type columnView struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

type tempTableView struct {
	Columns       []string `json:"columns,omitempty"`
	CreatedBatch  int      `json:"created_batch"`
	Global        bool     `json:"global,omitempty"`
	DroppedAtLine int      `json:"dropped_at_line,omitempty"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	res := parser.ParseWithOptions(req.SQL, s.cfg.ParseOptions)
	resp := parseResponse{Statements: make([]statementView, 0, len(res.Statements))}
	for _, stmt := range res.Statements {
		resp.Statements = append(resp.Statements, newStatementView(stmt))
	}
	if len(res.TempTables) > 0 {
		resp.TempTables = make(map[string]*tempTableView, len(res.TempTables))
		for name, info := range res.TempTables {
			v := &tempTableView{
				CreatedBatch:  info.CreatedInBatch,
				Global:        info.IsGlobal,
				DroppedAtLine: info.DroppedAtLine,
			}
			for _, col := range info.Columns {
				v.Columns = append(v.Columns, col.Name)
			}
			resp.TempTables[name] = v
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func newStatementView(stmt *parser.StatementChunk) statementView {
	v := statementView{Type: string(stmt.Type), Batch: stmt.BatchIndex}
	for i := range stmt.Tables {
		ref := &stmt.Tables[i]
		v.Tables = append(v.Tables, tableView{Name: ref.QualifiedName(), Alias: ref.Alias})
	}
	for _, col := range stmt.Columns {
		name := col.Name
		if col.IsStar {
			name = "*"
		}
		v.Columns = append(v.Columns, columnView{Name: name, Parent: col.ParentTable})
	}
	for _, p := range stmt.Parameters {
		v.Parameters = append(v.Parameters, p.FullName)
	}
	if len(stmt.Clauses) > 0 {
		v.Clauses = make(map[string]string, len(stmt.Clauses))
		for key, span := range stmt.Clauses {
			v.Clauses[key] = span.String()
		}
	}
	return v
}

type completeRequest struct {
	SQL  string `json:"sql"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

type completeResponse struct {
	Mode       string          `json:"mode"`
	Database   string          `json:"database,omitempty"`
	Schema     string          `json:"schema,omitempty"`
	Alias      string          `json:"alias,omitempty"`
	Word       string          `json:"word,omitempty"`
	Candidates []candidateView `json:"candidates"`
}

type candidateView struct {
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Kind   string `json:"kind"`
}

// handleComplete runs completion under the session: a new request cancels
// the previous one, and a superseded request answers 409 instead of
// delivering a stale candidate list.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	ctx, id := s.session.Begin(r.Context())
	res := parser.ParseWithOptions(req.SQL, s.cfg.ParseOptions)
	comp, err := s.cfg.Engine.CompleteParsed(ctx, res, token.Position{Line: req.Line, Col: req.Col})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.writeError(w, http.StatusConflict, errors.New("request superseded"))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	delivered := s.session.Deliver(id, func() {
		resp := completeResponse{
			Mode:       string(comp.Context.Mode),
			Database:   comp.Context.FilterDatabase,
			Schema:     comp.Context.FilterSchema,
			Alias:      comp.Context.Alias,
			Word:       comp.Context.Word,
			Candidates: make([]candidateView, 0, len(comp.Candidates)),
		}
		for _, cand := range comp.Candidates {
			resp.Candidates = append(resp.Candidates, candidateView{
				Label:  cand.Label,
				Detail: cand.Detail,
				Kind:   string(cand.Kind),
			})
		}
		s.writeJSON(w, http.StatusOK, resp)
	})
	if !delivered {
		s.writeError(w, http.StatusConflict, errors.New("request superseded"))
	}
}

type joinsRequest struct {
	Tables   []string `json:"tables"`
	MaxDepth int      `json:"max_depth,omitempty"`
}

type joinsResponse struct {
	Suggestions []joinView `json:"suggestions"`
}

type joinView struct {
	Hops   int    `json:"hops"`
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

func (s *Server) handleJoins(w http.ResponseWriter, r *http.Request) {
	var req joinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if len(req.Tables) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("tables is required"))
		return
	}

	ctx := r.Context()
	sources := make([]*catalog.Table, 0, len(req.Tables))
	for _, name := range req.Tables {
		resolved, err := s.cfg.Provider.ResolveTable(ctx, "", "", name)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, fmt.Errorf("table %s not found", name))
				return
			}
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		sources = append(sources, resolved)
	}

	depth := req.MaxDepth
	if depth <= 0 {
		depth = s.cfg.MaxJoinDepth
	}
	byHop, err := fkgraph.Find(ctx, sources, s.cfg.Provider, fkgraph.Options{MaxDepth: depth})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := joinsResponse{Suggestions: make([]joinView, 0)}
	for _, res := range fkgraph.Flatten(byHop) {
		resp.Suggestions = append(resp.Suggestions, joinView{
			Hops:   res.HopCount,
			Label:  res.Label(),
			Detail: res.Detail(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// watchSchema re-loads the schema file when it changes on disk. Editors
// replace files on save, so Create counts as a change too.
func (s *Server) watchSchema(ctx context.Context, reloader Reloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.cfg.SchemaFile); err != nil {
		s.log.Error("failed to watch schema file", "file", s.cfg.SchemaFile, "error", err)
		return nil
	}

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.log.Debug("schema file changed, reloading", "file", s.cfg.SchemaFile)
				if err := reloader.Reload(s.cfg.SchemaFile); err != nil {
					s.log.Error("schema reload failed", "error", err)
				}
			})

		case err := <-watcher.Errors:
			s.log.Error("watcher error", "error", err)
		}
	}
}
