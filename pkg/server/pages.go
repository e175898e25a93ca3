package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/moderation"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/feed"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
)

var (
	//go:embed templates/*.html
	templateFS embed.FS

	//go:embed assets
	assetFS embed.FS

	pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))
)

type demoPage struct {
	Denylist          []string
	ModerationMessage string
	ChannelError      string
	EnforceModeration bool
}

func assetHandler() http.Handler {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/assets/", http.FileServerFS(sub))
}

func renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logging.From(r.Context()).Error("failed to render page", "page", name, "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "index.html", nil)
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, "demo.html", demoPage{
		Denylist:          moderation.DefaultTerms,
		ModerationMessage: model.ErrModerationRejected.Error(),
		ChannelError:      feed.ChannelErrorMessage,
		EnforceModeration: s.enforceModeration,
	})
}
