package dashboard

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"encoding/json"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/history"
	"github.com/TheLazyLemur/benpdf/internal/permission"
	"github.com/TheLazyLemur/benpdf/internal/tools"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

//go:embed static/*
var staticFiles embed.FS

var templates = template.Must(template.ParseFS(staticFiles, "static/*.html"))

const (
	sessionCookieName = "benpdf_session"
	maxUploadSize     = 32 << 20
	healthTimeout     = 3 * time.Second
	historyPageSize   = 50
)

// Submitter runs one conversion round-trip. *core.Controller implements it.
type Submitter interface {
	Submit(ctx context.Context, req core.ToolRequest, dl core.Downloader) (*core.Outcome, error)
}

// HistoryLister lists journaled submissions. *history.Store implements it.
type HistoryLister interface {
	List(limit int) ([]*history.Entry, error)
}

// Server handles the dashboard HTTP and WS endpoints.
type Server struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	catalog   *tools.Catalog
	submitter Submitter
	health    core.HealthChecker
	history   HistoryLister
	checker   *permission.SourceChecker
	password  string

	mu       sync.Mutex
	sessions map[string]time.Time // valid session tokens

	featMu   sync.RWMutex
	features core.Features
}

// NewServer creates a dashboard server. hub, health, hist and checker may be
// nil; an empty password leaves the dashboard open.
func NewServer(hub *Hub, catalog *tools.Catalog, submitter Submitter, health core.HealthChecker, hist HistoryLister, checker *permission.SourceChecker, password string) *Server {
	return &Server{
		hub:       hub,
		catalog:   catalog,
		submitter: submitter,
		health:    health,
		history:   hist,
		checker:   checker,
		password:  password,
		sessions:  make(map[string]time.Time),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return false
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return u.Host == r.Host
			},
		},
	}
}

// Handler returns the HTTP handler for the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Login routes (no auth required)
	mux.HandleFunc("/login", s.handleLogin)

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux.Handle("GET /static/", s.requireAuth(http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))))

	mux.Handle("GET /{$}", s.requirePage(http.HandlerFunc(s.handleIndex)))
	mux.Handle("GET /tools/{name}", s.requirePage(http.HandlerFunc(s.handleTool)))
	mux.Handle("POST /tools/{name}", s.requirePage(http.HandlerFunc(s.handleSubmit)))
	mux.Handle("GET /history", s.requirePage(http.HandlerFunc(s.handleHistory)))

	mux.Handle("GET /api/features", s.requireAuth(http.HandlerFunc(s.handleFeatures)))
	mux.Handle("GET /ws", s.requireAuth(http.HandlerFunc(s.handleWS)))

	return mux
}

type indexPage struct {
	Categories []tools.Category
	Features   core.Features
	History    bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	s.render(w, http.StatusOK, "index.html", indexPage{
		Categories: s.catalog.Categories(),
		Features:   s.refreshFeatures(ctx),
		History:    s.history != nil,
	})
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	tool, ok := s.catalog.Get(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.render(w, http.StatusOK, "tool.html", parseView(r, tool, s.currentFeatures()))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	tool, ok := s.catalog.Get(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		view := parseView(r, tool, s.currentFeatures())
		s.renderError(w, view, core.InputRequired("could not read upload: %v", err))
		return
	}

	view := parseView(r, tool, s.currentFeatures())
	req, local, err := s.buildRequest(r, tool, view)
	if err != nil {
		s.renderError(w, view, err)
		return
	}
	if local != nil {
		view.Result = local
		s.render(w, http.StatusOK, "tool.html", view)
		return
	}

	dl := NewAttachmentResponder(w)
	out, err := s.submitter.Submit(r.Context(), req, dl)
	if err != nil {
		if dl.Written() {
			slog.Error("attachment interrupted", "tool", tool.Name, "error", err)
			return
		}
		s.renderError(w, view, err)
		return
	}
	if out.Artifact != nil {
		return
	}

	view.Result = resultFor(tool, out.JSON)
	s.render(w, http.StatusOK, "tool.html", view)
}

// buildRequest turns the submitted form into a ToolRequest. A non-nil Result
// means the answer is known without asking the backend.
func (s *Server) buildRequest(r *http.Request, tool core.Tool, view View) (core.ToolRequest, *Result, error) {
	req := core.ToolRequest{Tool: tool, Fields: make(map[string]string, len(view.Fields))}
	for k, v := range view.Fields {
		if v != "" {
			req.Fields[k] = v
		}
	}

	if tool.Response == core.ResponseJSON {
		payload, err := tools.JSONPayload(tool, view.Fields)
		if err != nil {
			return req, nil, err
		}
		if u, ok := payload.(tools.UnitRequest); ok && u.Trivial() {
			return req, unitResult(u), nil
		}
		req.Input = core.FromJSON(payload)
		return req, nil, nil
	}

	switch view.Mode {
	case core.ModeFile:
		file, err := formFile(r, "file")
		if err != nil {
			return req, nil, err
		}
		req.Input = core.Input{Mode: core.ModeFile, File: file}
		if file != nil && !tools.Accepts(tool, file.Name, file.Content) {
			return req, nil, core.InputRequired("%s is not a supported file type for %s", file.Name, tool.Title)
		}
	case core.ModeURL:
		req.Input = core.FromURL(r.FormValue("url"))
		if req.Input.URL != "" && s.checker != nil {
			if allow, reason := s.checker.Check(core.ModeURL, req.Input.URL); !allow {
				return req, nil, core.InputRequired("%s", reason)
			}
		}
	}

	for _, f := range tool.Fields {
		if !f.IsFile() {
			continue
		}
		file, err := formFile(r, f.Name)
		if err != nil {
			return req, nil, err
		}
		if file == nil {
			continue
		}
		if req.Attachments == nil {
			req.Attachments = make(map[string]core.FileInput)
		}
		req.Attachments[f.Name] = *file
	}
	return req, nil, nil
}

// formFile reads an uploaded file; a missing upload is not an error.
func formFile(r *http.Request, name string) (*core.FileInput, error) {
	f, hdr, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading upload %s", name)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading upload %s", name)
	}
	return &core.FileInput{Name: hdr.Filename, Content: content}, nil
}

type historyPage struct {
	Entries []*history.Entry
	Error   string
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	entries, err := s.history.List(historyPageSize)
	if err != nil {
		slog.Error("list history", "error", err)
		s.render(w, http.StatusInternalServerError, "history.html", historyPage{Error: err.Error()})
		return
	}
	s.render(w, http.StatusOK, "history.html", historyPage{Entries: entries})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.refreshFeatures(ctx))
}

// refreshFeatures asks the backend for its capability flags. On failure the
// last known flags are kept; unknown flags count as enabled.
func (s *Server) refreshFeatures(ctx context.Context) core.Features {
	if s.health == nil {
		return s.currentFeatures()
	}
	features, err := s.health.Health(ctx)
	if err != nil {
		slog.Warn("backend health", "error", err)
		return s.currentFeatures()
	}

	s.featMu.Lock()
	s.features = features
	s.featMu.Unlock()

	if s.hub != nil {
		s.hub.BroadcastSticky(Message{Type: "features", Features: features})
	}
	return features
}

func (s *Server) currentFeatures() core.Features {
	s.featMu.RLock()
	defer s.featMu.RUnlock()
	return s.features
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("render template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, view View, err error) {
	status := http.StatusInternalServerError
	var serr *core.StructuredError
	if errors.As(err, &serr) {
		view.Error = serr.Message
		view.ErrorKind = string(serr.Kind)
		status = statusFor(serr.Kind)
	} else {
		view.Error = err.Error()
	}
	s.render(w, status, "tool.html", view)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.password == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		s.render(w, http.StatusOK, "login.html", nil)
		return
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if subtle.ConstantTimeCompare([]byte(r.FormValue("password")), []byte(s.password)) != 1 {
			http.Error(w, "invalid password", http.StatusUnauthorized)
			return
		}

		token := s.createSession()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   86400 * 7, // 7 days
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) createSession() string {
	b := make([]byte, 32)
	rand.Read(b)
	token := hex.EncodeToString(b)

	s.mu.Lock()
	s.sessions[token] = time.Now()
	s.mu.Unlock()

	return token
}

func (s *Server) isAuthenticated(r *http.Request) bool {
	if s.password == "" {
		return true
	}
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}

	s.mu.Lock()
	_, valid := s.sessions[cookie.Value]
	s.mu.Unlock()

	return valid
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAuthenticated(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePage is requireAuth for browser pages: it redirects to the login form.
func (s *Server) requirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAuthenticated(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "live updates disabled", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.hub.register <- client

	go client.writePump()
	go client.readPump(s.handleMessage)
}

func (s *Server) handleMessage(client *Client, msg Message) {
	switch msg.Type {
	case "refresh_features":
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
			defer cancel()
			client.Send(Message{Type: "features", Features: s.refreshFeatures(ctx)})
		}()
	}
}
