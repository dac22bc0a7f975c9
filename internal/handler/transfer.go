package handler

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"etlrepo/internal/codec"
	"etlrepo/internal/service"
)

// GetInventory lists every transformation and job per directory as
// ?format=json (default) or yaml.
func (h *RepositoryHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, err := codec.ExporterFor(format)
	if err != nil {
		h.writeError(w, "Invalid format", err.Error(), http.StatusBadRequest)
		return
	}

	inv, err := h.svc.Inventory(r.Context())
	if err != nil {
		h.fail(w, "Failed to build inventory", err, http.StatusInternalServerError)
		return
	}

	if exporter.Format() == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/yaml")
	}
	if err := exporter.Export(inv, w); err != nil {
		h.logger.Error("failed to write inventory", zap.Error(err))
	}
}

// Export streams the export document of ?dir= (default the root). The
// outcome is reported in the X-Export-Summary trailer since the status is
// sent before the first object is written.
func (h *RepositoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	dir := directoryParam(r)
	if _, err := h.svc.Repository().FindDirectory(dir); err != nil {
		h.fail(w, "Failed to export", err, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", `attachment; filename="repository.xml"`)
	w.Header().Set("Trailer", "X-Export-Summary")

	result, err := h.transfer.Export(r.Context(), w, dir)
	if err != nil {
		h.logger.Error("export failed", zap.String("directory", dir), zap.Error(err))
		w.Header().Set("X-Export-Summary", "failed: "+err.Error())
		return
	}
	w.Header().Set("X-Export-Summary", result.Summary())
}

// Import reads an export document from the request body. Options come from
// the query: base, trans_dir, job_dir, overwrite (always or never),
// continue, comment and any number of limit.
func (h *RepositoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	opts, err := importOptions(r)
	if err != nil {
		h.writeError(w, "Invalid import options", err.Error(), http.StatusBadRequest)
		return
	}

	fb := service.NewLogFeedback(h.logger, opts.Overwrite == service.OverwriteAlways, opts.ContinueOnError)
	result, err := h.transfer.Import(r.Context(), r.Body, opts, fb)
	if err != nil {
		h.fail(w, "Import failed", err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, result, http.StatusOK)
}

func importOptions(r *http.Request) (service.ImportOptions, error) {
	q := r.URL.Query()
	policy, err := service.ParseOverwritePolicy(q.Get("overwrite"))
	if err != nil {
		return service.ImportOptions{}, err
	}
	// Nobody can answer overwrite questions over HTTP
	if policy == service.OverwriteAsk {
		return service.ImportOptions{}, errors.New("overwrite policy ask is not available over HTTP")
	}

	var limit []string
	for _, dir := range q["limit"] {
		if dir = strings.TrimSpace(dir); dir != "" {
			limit = append(limit, dir)
		}
	}

	return service.ImportOptions{
		BaseDirectory:    q.Get("base"),
		TransDirOverride: q.Get("trans_dir"),
		JobDirOverride:   q.Get("job_dir"),
		Overwrite:        policy,
		ContinueOnError:  boolParam(r, "continue"),
		VersionComment:   q.Get("comment"),
		LimitDirs:        limit,
	}, nil
}
