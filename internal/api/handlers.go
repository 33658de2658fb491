package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/discovery"
	"github.com/tenkings/setops-ingest/internal/ingest"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
)

const uploadField = "file"

type searchResponse struct {
	Results []setops.DiscoveryResult `json:"results"`
}

type parseResponse struct {
	FileName   string          `json:"fileName"`
	ParserName string          `json:"parserName"`
	Title      string          `json:"title,omitempty"`
	RowCount   int             `json:"rowCount"`
	SampleRows []setops.Record `json:"sampleRows"`
}

func (s *Server) searchSources(w http.ResponseWriter, r *http.Request) {
	var q discovery.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	results, err := s.searcher.SearchSetSources(r.Context(), q)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if results == nil {
		results = []setops.DiscoveryResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) importSource(w http.ResponseWriter, r *http.Request) {
	var params ingest.ImportParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.importer.ImportDiscoveredSource(r.Context(), params)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) uploadSource(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	params := ingest.ImportParams{
		SetID:          r.FormValue("setId"),
		DatasetType:    setops.DatasetType(r.FormValue("datasetType")),
		SourceURL:      r.FormValue("sourceUrl"),
		SourceProvider: r.FormValue("sourceProvider"),
		SourceTitle:    r.FormValue("sourceTitle"),
		ParserVersion:  r.FormValue("parserVersion"),
		DiscoveryQuery: r.FormValue("discoveryQuery"),
		CreatedByID:    r.FormValue("createdById"),
	}
	res, err := s.importer.ImportUploadedFile(r.Context(), params, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) {
	file, err := s.readUpload(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	parsed, err := s.parser.ParseUploadedSourceFile(file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	sample := parsed.Rows
	if len(sample) > ingest.PreviewRows {
		sample = sample[:ingest.PreviewRows]
	}
	writeJSON(w, http.StatusOK, parseResponse{
		FileName:   file.FileName,
		ParserName: parsed.ParserName,
		Title:      parsed.Title,
		RowCount:   len(parsed.Rows),
		SampleRows: sample,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, setops.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// readUpload reads the multipart file field, bounded by the configured upload size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (source.UploadedFile, error) {
	limit := s.cfg.Server.MaxUploadBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return source.UploadedFile{}, setops.Errorf(setops.KindInput, "Uploaded file exceeds %d bytes.", limit)
		}
		return source.UploadedFile{}, setops.Wrap(setops.KindInput, "Expected a multipart form with a file field.", err)
	}
	part, header, err := r.FormFile(uploadField)
	if err != nil {
		return source.UploadedFile{}, setops.Wrap(setops.KindInput, fmt.Sprintf("Missing %q form field.", uploadField), err)
	}
	defer func() {
		if cerr := part.Close(); cerr != nil {
			s.logger.Warn("close upload part failed", zap.Error(cerr))
		}
	}()
	buf, err := io.ReadAll(part)
	if err != nil {
		return source.UploadedFile{}, fmt.Errorf("read upload: %w", err)
	}
	return source.UploadedFile{
		FileName:    header.Filename,
		Buffer:      buf,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
