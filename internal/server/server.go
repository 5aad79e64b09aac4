// Package server is the read-only dashboard over the sink tables.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/TobiSchelling/covidboard/internal/chart"
	"github.com/TobiSchelling/covidboard/internal/config"
	"github.com/TobiSchelling/covidboard/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for the dashboard.
type Server struct {
	cfg      *config.Config
	db       *database.DB
	store    *Store
	gatherer prometheus.Gatherer
	printer  *message.Printer
	pages    map[string]*template.Template
	router   chi.Router
}

// New creates a new Server. db may be nil, in which case run history is not
// shown.
func New(cfg *config.Config, db *database.DB, store *Store, gatherer prometheus.Gatherer) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"ago":      humanize.Time,
		"duration": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// each page gets its own clone of base so "title" and "content" do not
	// collide
	pageNames := []string{"page.html", "runs.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		store:    store,
		gatherer: gatherer,
		printer:  message.NewPrinter(language.Russian),
		pages:    pages,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page/"+Pages[0].Slug, http.StatusFound)
	})
	r.Get("/page/{slug}", s.handlePage)
	r.Get("/chart/{slug}/{index}.png", s.handleChart)
	r.Get("/runs", s.handleRuns)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// aside is the sidebar as display strings.
type aside struct {
	Updated    string
	Cases      string
	Share      string
	Deaths     string
	Lethality  string
	Discharged string
	RateHigh   string
	RateLow    string
}

func (s *Server) aside() *aside {
	name := s.cfg.Server.MainTable
	spec, ok := s.cfg.Table(name)
	if !ok {
		return nil
	}
	t, err := s.store.Table(name)
	if err != nil {
		zap.S().Debugf("sidebar: %v", err)
		return nil
	}
	sum, err := Summarize(t, spec.DateColumn, s.cfg.Server.Population)
	if err != nil {
		zap.S().Warnf("sidebar: %v", err)
		return nil
	}
	p := s.printer
	return &aside{
		Updated:    sum.Updated,
		Cases:      p.Sprintf("%d", sum.Cases),
		Share:      p.Sprintf("%.2f%%", sum.Share),
		Deaths:     p.Sprintf("%d", sum.Deaths),
		Lethality:  p.Sprintf("%.2f%%", sum.Lethality),
		Discharged: p.Sprintf("%d", sum.Discharged),
		RateHigh:   p.Sprintf("%d", sum.RateHigh),
		RateLow:    p.Sprintf("%d", sum.RateLow),
	}
}

type figureView struct {
	Title string
	URL   string
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, ok := findPage(chi.URLParam(r, "slug"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	figures := make([]figureView, len(page.Figures))
	for i, f := range page.Figures {
		figures[i] = figureView{
			Title: f.Params.Title,
			URL:   fmt.Sprintf("/chart/%s/%d.png", page.Slug, i),
		}
	}

	s.render(w, "page.html", map[string]any{
		"Site":    s.cfg.Server.Title,
		"Pages":   Pages,
		"Page":    page,
		"Figures": figures,
		"Aside":   s.aside(),
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	page, ok := findPage(chi.URLParam(r, "slug"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 || i >= len(page.Figures) {
		http.NotFound(w, r)
		return
	}
	fig := page.Figures[i]

	name := fig.Table
	if name == "" {
		name = s.cfg.Server.MainTable
	}
	spec, ok := s.cfg.Table(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	t, err := s.store.Table(name)
	if err != nil {
		zap.S().Warnf("chart %s/%d: %v", page.Slug, i, err)
		http.Error(w, "table not available", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, t, spec.DateColumn, fig.Params); err != nil {
		zap.S().Warnf("chart %s/%d: %v", page.Slug, i, err)
		code := http.StatusInternalServerError
		if errors.Is(err, chart.ErrTooFewPoints) {
			code = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(s.cfg.Server.CacheTTL.Seconds())))
	w.Write(buf.Bytes())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	var runs []database.Run
	if s.db != nil {
		var err error
		if runs, err = s.db.GetRecentRuns(20); err != nil {
			zap.S().Errorf("listing runs: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	s.render(w, "runs.html", map[string]any{
		"Site":  s.cfg.Server.Title,
		"Pages": Pages,
		"Runs":  runs,
		"Aside": s.aside(),
	})
}

type health struct {
	Status  string     `json:"status"`
	LastRun *runHealth `json:"last_run,omitempty"`
}

type runHealth struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok"}
	if s.db != nil {
		run, err := s.db.GetLastRun()
		if err != nil {
			h.Status = "degraded"
			zap.S().Warnf("healthz: %v", err)
		} else if run != nil {
			h.LastRun = &runHealth{ID: run.ID, Status: run.Status, FinishedAt: run.FinishedAt}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		zap.S().Errorf("template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		zap.S().Errorf("rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.store.Watch(ctx); err != nil {
			zap.S().Warnf("sink watcher stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zap.S().Infof("Server listening on http://%s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
