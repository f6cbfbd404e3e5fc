package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/shadowing/internal/ingest"
	"github.com/ent0n29/shadowing/internal/model"
)

type materialResponse struct {
	Material model.Material  `json:"material"`
	Segments []model.Segment `json:"segments"`
}

type ingestMediaRequest struct {
	URL string `json:"url"`
}

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListMaterials(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"materials": list})
}

func (s *Server) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := s.store.GetMaterial(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	segs, err := s.store.MaterialSegments(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, materialResponse{Material: m, Segments: segs})
}

func (s *Server) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	m, err := s.store.GetMaterial(ctx, id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	segs, err := s.store.MaterialSegments(ctx, id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	files := []string{m.AudioPath, m.ThumbnailPath}
	for _, seg := range segs {
		files = append(files, seg.AudioPath)
		practices, err := s.store.ListPractices(ctx, seg.ID)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		for _, p := range practices {
			files = append(files, p.RecordingPath)
		}
	}

	if err := s.store.DeleteMaterial(ctx, id); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.removeFiles(files)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) removeFiles(paths []string) {
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove material file", "path", p, "err", err)
		}
	}
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()
	if !ingest.SupportedDocument(header.Filename) {
		respondError(w, http.StatusBadRequest, "unsupported_document", "document must be .pdf, .txt or .md")
		return
	}

	path, err := s.saveUpload(file, "document", filepath.Ext(header.Filename))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	defer os.Remove(path)

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	m, err := s.documents.Ingest(r.Context(), ingest.DocumentRequest{Title: title, Path: path})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleIngestMedia(w http.ResponseWriter, r *http.Request) {
	var req ingestMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	u, err := url.Parse(req.URL)
	if req.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "url must be an absolute http(s) URL")
		return
	}

	m, err := s.media.Ingest(r.Context(), req.URL)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleIngestUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := audioContentTypes[ext]; !ok {
		respondError(w, http.StatusBadRequest, "unsupported_audio", fmt.Sprintf("unsupported audio type %q", ext))
		return
	}

	// The ingestor owns the file from here and removes it on failure.
	path, err := s.saveUpload(file, "upload", ext)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	m, err := s.media.IngestFile(r.Context(), ingest.FileRequest{Title: title, Path: path})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleSegmentAudio(w http.ResponseWriter, r *http.Request) {
	seg, err := s.store.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	path := seg.AudioPath
	if path == "" {
		m, err := s.store.GetMaterial(r.Context(), seg.MaterialID)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		path = m.AudioPath
		// Shared track: the client seeks to the segment window.
		w.Header().Set("X-Segment-Start", strconv.FormatFloat(seg.StartTime, 'f', 3, 64))
		w.Header().Set("X-Segment-End", strconv.FormatFloat(seg.EndTime, 'f', 3, 64))
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "audio_not_found", "audio file is missing")
		return
	}
	if ct, ok := audioContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFile(w, r, path)
}

// formFile reads the "file" part of a size-limited multipart request.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return nil, nil, false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "multipart field \"file\" is required")
		return nil, nil, false
	}
	return file, header, true
}

func (s *Server) saveUpload(src io.Reader, prefix, ext string) (string, error) {
	dir := s.cfg.MaterialsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d%s", prefix, s.now().UnixNano(), strings.ToLower(ext)))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}
