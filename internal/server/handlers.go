package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/leakscan/internal/config"
	"github.com/hyperjump/leakscan/internal/errs"
	"github.com/hyperjump/leakscan/internal/models"
)

// uploadField is the multipart field carrying the dump.
const uploadField = "document"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadMB<<20)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, "expected a multipart/form-data upload", err))
		return
	}

	owner := s.owners.Owner(r)
	if owner == "" {
		owner = AnonymousOwner
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.respondError(w, uploadReadError(err))
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		name := part.FileName()
		s.logger.Debug("upload request", zap.String("name", name), zap.String("owner_id", owner))
		res, err := s.svc.Upload(r.Context(), part, name, owner)
		_ = part.Close()
		if err != nil {
			s.respondError(w, uploadReadError(err))
			return
		}
		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}
		s.respondJSON(w, status, res)
		return
	}
	s.respondError(w, errs.Newf(errs.KindInvalidArgument, "multipart field %q is required", uploadField))
}

// uploadReadError marks an oversized body so it maps to 413.
func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &requestTooLarge{limit: tooLarge.Limit}
	}
	return err
}

type requestTooLarge struct{ limit int64 }

func (e *requestTooLarge) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.limit)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := s.svc.NewQuery(r.URL.Query().Get("domain"))
	q.OwnerID = s.owners.Owner(r)
	var err error
	if q.Page, err = intParam(r, "page", q.Page); err != nil {
		s.respondError(w, err)
		return
	}
	if q.PageSize, err = intParam(r, "limit", q.PageSize); err != nil {
		s.respondError(w, err)
		return
	}
	s.logger.Debug("search request", zap.String("domain", q.Domain), zap.Int("page", q.Page), zap.Int("limit", q.PageSize))
	page, err := s.svc.Search(r.Context(), q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req models.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, "invalid request body", err))
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = s.owners.Owner(r)
	}
	s.logger.Debug("export request", zap.String("domain", req.Domain), zap.String("format", req.Format))
	res, err := s.svc.Export(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Export-Rows", strconv.Itoa(res.Rows))
	w.Header().Set("X-Export-Total", strconv.Itoa(res.Total))
	if res.Truncated {
		w.Header().Set("X-Export-Truncated", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := models.ListQuery{OwnerID: s.owners.Owner(r), Page: 1, PageSize: s.cfg.Search.DefaultPageSize}
	var err error
	if q.Page, err = intParam(r, "page", q.Page); err != nil {
		s.respondError(w, err)
		return
	}
	if q.PageSize, err = intParam(r, "limit", q.PageSize); err != nil {
		s.respondError(w, err)
		return
	}
	if q.Page < 1 || q.PageSize < 1 {
		s.respondError(w, errs.New(errs.KindInvalidArgument, "page and limit must be >= 1"))
		return
	}
	page, err := s.svc.ListDocuments(r.Context(), q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	st.Config.WatchDirectories = s.watchDirectories()
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) watchDirectories() []string {
	if s.watch == nil {
		return nil
	}
	return s.watch.Directories()
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondStatus(w, http.StatusNotImplemented, "NotImplemented", "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondStatus(w, http.StatusNotImplemented, "NotImplemented", "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, "invalid request body", err))
		return
	}
	abs, err := absDir(req.Path)
	if err != nil {
		s.respondError(w, err)
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondError(w, err)
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondStatus(w, http.StatusNotImplemented, "NotImplemented", "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, errs.New(errs.KindInvalidArgument, "path query parameter is required"))
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, errs.Wrap(errs.KindInvalidArgument, "invalid path", err))
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondError(w, err)
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func absDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errs.New(errs.KindInvalidArgument, "path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Wrap(errs.KindInvalidArgument, "invalid path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.Newf(errs.KindNotFound, "directory %s not found", abs)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", errs.Newf(errs.KindInvalidArgument, "%s is not a directory", abs)
	}
	return abs, nil
}

func (s *Server) persistWatch() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// intParam parses an optional positive integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Newf(errs.KindInvalidArgument, "%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var tooLarge *requestTooLarge
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch errs.KindOf(err) {
	case errs.KindInvalidArgument:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindDuplicateContent:
		return http.StatusConflict
	case errs.KindUnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case errs.KindEncodingError:
		return http.StatusUnprocessableEntity
	case errs.KindIndexUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := string(errs.KindOf(err))
	msg := errs.Message(err)
	switch {
	case status == http.StatusRequestEntityTooLarge:
		kind, msg = "RequestTooLarge", err.Error()
	case kind == "":
		kind, msg = "Internal", "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.respondStatus(w, status, kind, msg)
}

func (s *Server) respondStatus(w http.ResponseWriter, status int, kind, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	})
}
