package guard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/locguard/kit"
	"github.com/hazyhaar/locguard/report"
)

// Router returns a chi router with the standard middleware and every
// locguard route.
func (g *Guard) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	g.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the locguard routes on r.
func (g *Guard) RegisterHTTP(r chi.Router) {
	r.Get("/health", kit.HTTPHandler(g.logged("health", g.healthEndpoint()), nil))
	r.Get("/locators", kit.HTTPHandler(g.logged("locators", g.locatorsEndpoint()), nil))
	r.Post("/locators/restore", kit.HTTPHandler(g.logged("restore", g.restoreEndpoint()), nil))
	r.Get("/changes", kit.HTTPHandler(g.logged("changes", g.changesEndpoint()), decodeList))
	r.Get("/passes", kit.HTTPHandler(g.logged("passes", g.passesEndpoint()), decodeList))
	r.Post("/mining-passes", kit.HTTPHandler(g.logged("mining_pass", g.passEndpoint()), decodePass))
	r.Post("/monitor-runs", kit.HTTPHandler(g.logged("monitor", g.monitorEndpoint()), nil))

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", kit.HTTPHandler(g.logged("reports", g.reportsEndpoint()), decodeList))
		r.Get("/latest.html", g.reportHTML)
		r.Get("/latest.md", g.reportMarkdown)
		r.Get("/{id}", kit.HTTPHandler(g.logged("report", g.reportEndpoint()), decodeReport))
	})
}

func decodeList(r *http.Request) (any, error) {
	q := r.URL.Query()
	req := &listRequest{Field: q.Get("field")}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.New("limit must be an integer")
		}
		req.Limit = n
	}
	return req, nil
}

func decodePass(r *http.Request) (any, error) {
	var req passRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &req, nil
}

// "latest" is an alias for the most recent report.
func decodeReport(r *http.Request) (any, error) {
	id := chi.URLParam(r, "id")
	if id == "latest" {
		id = ""
	}
	return &reportRequest{ID: id}, nil
}

func (g *Guard) reportHTML(w http.ResponseWriter, r *http.Request) {
	rep, err := g.report(r.Context(), "")
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.HTML(w, rep); err != nil {
		g.logger.Error("guard: render html report", "id", rep.ID, "error", err)
	}
}

func (g *Guard) reportMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, err := g.report(r.Context(), "")
	if err != nil {
		writeErr(w, err)
		return
	}
	md, err := report.Markdown(rep)
	if err != nil {
		kit.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.Copy(w, strings.NewReader(md))
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var he *kit.HTTPError
	if errors.As(err, &he) {
		status = he.Status
	}
	kit.WriteError(w, status, err)
}
