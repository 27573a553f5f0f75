package httpadapter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const (
	// multipartMemory is how much of an upload is buffered in memory before
	// the rest spills to temporary files.
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "upload document", err))
			return
		}
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.deps.Ingestor.Upload(
		r.Context(),
		owner,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordUpload(doc.FileSize)
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	query := r.URL.Query()
	docs, total, err := rt.deps.Documents.List(r.Context(), owner, domain.DocumentListFilter{
		Classification: strings.TrimSpace(query.Get("classification")),
		Status:         domain.DocumentStatus(strings.TrimSpace(query.Get("status"))),
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[domain.Document]{Items: docs, Total: total, Page: page, PageSize: pageSize})
}

func (rt *Router) documentStats(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, total, err := rt.deps.Documents.ClassificationStats(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "classifications": stats})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := rt.deps.Documents.GetByID(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.deps.Documents.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := rt.deps.Ingestor.Reprocess(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// evaluateDocument runs one stored document through the owner's active rules.
func (rt *Router) evaluateDocument(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := rt.deps.Documents.GetByID(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	triggered, err := rt.deps.Rules.Evaluate(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.RuleEvaluation{DocumentID: doc.ID, Triggered: triggered})
}

func (rt *Router) evaluateAll(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Source == nil || rt.deps.Batch == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "batch evaluation is not configured"})
		return
	}
	docs, err := rt.deps.Source.LoadForEvaluation(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := rt.deps.Batch.EvaluateMany(r.Context(), docs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": len(docs), "results": results})
}
