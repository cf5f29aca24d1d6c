package cli

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mchmarny/specqc/pkg/qc"
	"github.com/mchmarny/specqc/pkg/qcerr"
	"github.com/mchmarny/specqc/pkg/report"
)

const formMaxBytes = 1 << 16

func faviconHandler(w http.ResponseWriter, r *http.Request) {
	file, err := embedFS.ReadFile("assets/img/favicon.svg")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err = w.Write(file); err != nil {
		slog.Error("failed to write favicon", "error", err)
	}
}

type homeView struct {
	Version      string
	Commit       string
	BuildDate    string
	BatchID      string
	InstrumentSN string
	Error        string
	Outcome      *qc.Outcome
	Downloads    []string
}

func newHomeView() *homeView {
	return &homeView{Version: version, Commit: commit, BuildDate: date}
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, v *homeView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "home", v); err != nil {
		slog.Error("template render failed", "error", err)
	}
}

func homeViewHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		render(w, tmpl, http.StatusOK, newHomeView())
	}
}

// batchViewHandler runs the batch posted from the home form and renders
// the outcome, including the per-file failures.
func batchViewHandler(tmpl *template.Template, svc *qc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, formMaxBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		v := newHomeView()
		v.BatchID = strings.TrimSpace(r.PostFormValue("batch_id"))
		v.InstrumentSN = strings.TrimSpace(r.PostFormValue("instrument_sn"))

		o, err := svc.Process(r.Context(), v.BatchID, v.InstrumentSN)
		v.Outcome = o
		if o != nil {
			for _, f := range o.Files {
				v.Downloads = append(v.Downloads, filepath.Base(f))
			}
		}

		if err != nil {
			slog.Error("batch failed", "batch", v.BatchID, "error", err)
			v.Error = err.Error()
			status := http.StatusInternalServerError
			if errors.Is(err, qcerr.ErrValidation) {
				status = http.StatusBadRequest
			}
			render(w, tmpl, status, v)
			return
		}

		render(w, tmpl, http.StatusOK, v)
	}
}

// downloadHandler serves report files from dir only.
func downloadHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "file")
		if !validReportName(name) {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		http.ServeFile(w, r, path)
	}
}

func validReportName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\"`) {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, f := range report.Formats {
		if ext == f {
			return true
		}
	}
	return false
}
