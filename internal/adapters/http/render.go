package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"civicreport/internal/adapters/http/middleware"
	"civicreport/internal/domain/account"
	"civicreport/internal/domain/complaint"
)

//go:embed templates/*.html pages/*.md
var assets embed.FS

// pageTemplates are rendered inside layout.html.
var pageTemplates = []string{
	"login.html",
	"register.html",
	"dashboard.html",
	"submit_complaint.html",
	"edit_complaint.html",
	"admin_dashboard.html",
	"admin_outbox.html",
	"info.html",
}

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"uploadURL": func(key string) string { return "/uploads/" + key },
	"statusClass": func(status string) string {
		switch status {
		case complaint.StatusResolved:
			return "status-resolved"
		case complaint.StatusRejected:
			return "status-rejected"
		case complaint.StatusInProgress:
			return "status-progress"
		default:
			return "status-pending"
		}
	},
}

func parseTemplates() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		tpl, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(assets, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		out[name] = tpl
	}
	return out, nil
}

// infoPage is a static page authored in markdown.
type infoPage struct {
	Title string
	Body  template.HTML
}

func loadInfoPages() (map[string]infoPage, error) {
	titles := map[string]string{"contact": "Contact Us", "team": "Our Team"}
	out := make(map[string]infoPage, len(titles))
	for name, title := range titles {
		src, err := assets.ReadFile("pages/" + name + ".md")
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := mdRenderer.Convert(src, &buf); err != nil {
			return nil, fmt.Errorf("render page %s: %w", name, err)
		}
		out[name] = infoPage{Title: title, Body: template.HTML(buf.String())}
	}
	return out, nil
}

// pageData is the envelope every template receives.
type pageData struct {
	Title     string
	LoggedIn  bool
	Session   middleware.Session
	IsAdmin   bool
	Flashes   []middleware.Flash
	CSRFField template.HTML
	Data      any
}

// render executes a page template inside the layout.
// POST: Pending flash messages are consumed
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	tpl, ok := s.templates[name]
	if !ok {
		internalError(w, fmt.Errorf("unknown template %q", name))
		return
	}
	sess, loggedIn := middleware.GetSessionFromContext(r.Context())
	page := pageData{
		Title:     title,
		LoggedIn:  loggedIn,
		Session:   sess,
		IsAdmin:   loggedIn && sess.Can(account.CapReviewComplaints),
		Flashes:   s.flash.Pop(w, r),
		CSRFField: csrf.TemplateField(r),
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, page); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// redirectWithFlash stores one message and redirects with 303.
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, category, message string) {
	s.flash.Set(w, middleware.Flash{Category: category, Message: message})
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// userMessage turns a validation error into a sentence when it is one of known.
func userMessage(err error, known ...error) (string, bool) {
	for _, k := range known {
		if errors.Is(err, k) {
			msg := k.Error()
			return strings.ToUpper(msg[:1]) + msg[1:] + ".", true
		}
	}
	return "", false
}
