package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"docstage/internal/intake"
	"docstage/internal/schema"
	"docstage/internal/stage"
)

type collectionResponse struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"displayName"`
	PartitionFields []string `json:"partitionFields"`
}

type listResponse struct {
	Records []*stage.Record `json:"records"`
}

type appendResponse struct {
	Inserted []*stage.Record `json:"inserted"`
	Skipped  int             `json:"skipped"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"collections": len(s.service.Collections()),
	})
}

func (s *Server) handleCollections(w http.ResponseWriter, _ *http.Request) {
	out := []collectionResponse{}
	for _, c := range s.service.Collections() {
		out = append(out, collectionResponse{
			Name:            c.Name,
			DisplayName:     c.DisplayName,
			PartitionFields: c.PartitionFields,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

// partitionKey reads the key=... query values in partition field order.
func (s *Server) partitionKey(r *http.Request) (string, schema.PartitionKey, error) {
	name := chi.URLParam(r, "collection")
	c, err := s.service.Collection(name)
	if err != nil {
		return name, nil, err
	}
	key, err := c.Key(r.URL.Query()["key"]...)
	if err != nil {
		return name, nil, err
	}
	return name, key, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	name, key, err := s.partitionKey(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	records, err := s.service.List(name, key)
	s.metrics.operation("list", name, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Records: records})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	name, key, err := s.partitionKey(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if limit := s.opts.requestLimit(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeValidationError, fmt.Sprintf("parsing multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := s.uploadedFiles(r.MultipartForm)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	inserted, err := s.service.Append(name, key, files)
	s.metrics.operation("append", name, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	for _, rec := range inserted {
		s.metrics.stagedBytes.Add(float64(rec.SizeBytes))
	}

	writeJSON(w, http.StatusCreated, appendResponse{Inserted: inserted, Skipped: len(files) - len(inserted)})
}

// uploadedFiles reads the "file" parts. The i-th "last_modified" value, in
// epoch milliseconds, belongs to the i-th file; a missing value means 0.
func (s *Server) uploadedFiles(form *multipart.Form) ([]stage.File, error) {
	headers := form.File["file"]
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no \"file\" parts in request", stage.ErrInvalidFile)
	}
	modified := form.Value["last_modified"]

	files := make([]stage.File, 0, len(headers))
	for i, fh := range headers {
		var millis int64
		if i < len(modified) && modified[i] != "" {
			v, err := strconv.ParseInt(modified[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: last_modified %q is not epoch milliseconds", stage.ErrInvalidFile, modified[i])
			}
			millis = v
		}

		f, err := readPart(fh, millis, s.opts.MaxFileSize)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader, modifiedMillis, maxSize int64) (stage.File, error) {
	src, err := fh.Open()
	if err != nil {
		return stage.File{}, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	return intake.FromReader(fh.Filename, src, time.UnixMilli(modifiedMillis), maxSize)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	err := s.service.Remove(name, id)
	s.metrics.operation("remove", name, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	h, err := s.service.OpenPayload(name, id)
	s.metrics.operation("payload", name, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("record %s not found in %s", id, name))
		return
	}
	defer h.Close()

	contentType := h.MimeType
	if contentType == stage.UnknownMimeType {
		contentType = "application/octet-stream"
	}
	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(h.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": h.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	// Headers are already sent, so a failed copy can only be logged.
	if _, err := io.Copy(w, h); err != nil {
		s.logger.Error("streaming payload failed", "collection", name, "id", id, "error", err)
	}
}
