package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
)

func (s *Server) handleListOrphans(w http.ResponseWriter, r *http.Request) {
	query := newQueryParams(r)
	resolved := query.Bool("resolved")
	page := query.Count("page", 1)
	limit := query.Count("limit", defaultOrphanPageLimit)
	if err := query.Err(); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := s.reconcileService.ListOrphans(r.Context(), resolved, page, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	pages := 0
	if result.Limit > 0 {
		pages = (result.Total + result.Limit - 1) / result.Limit
	}
	s.writeJSON(w, http.StatusOK, api.OrphanListResponse{
		Items: result.Items,
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
		Pages: pages,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.reconcileService.Scan(r.Context())
	if err != nil {
		if errors.Is(err, ErrScanInProgress) {
			s.writeErrorReq(w, r, http.StatusConflict, conflictCode(err, ErrCodeScanInProgress))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toAPIScanResponse(result))
}

func (s *Server) handleProcessOrphans(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessRequest
	if !s.readJSON(w, r, &req, true) {
		return
	}
	if req.Limit < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("limit must be >= 0"), ErrCodeInvalidLimit))
		return
	}

	result, err := s.reconcileService.Process(r.Context(), req.Limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.ProcessResponse{
		Processed:      result.Processed,
		Succeeded:      result.Succeeded,
		Failed:         result.Failed,
		ReclaimedBytes: result.ReclaimedBytes,
	})
}

func (s *Server) handleResolveOrphan(w http.ResponseWriter, r *http.Request) {
	id, err := requireOrphanID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	var req api.OrphanResolveRequest
	if !s.readJSON(w, r, &req, false) {
		return
	}
	if req.Resolved == nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("resolved is required"), ErrCodeMissingRequired))
		return
	}
	if len(req.Resolution) > maxResolutionLength {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("resolution must be at most %d characters", maxResolutionLength), ErrCodeInvalidResolution))
		return
	}

	entry, err := s.reconcileService.SetResolved(r.Context(), id, *req.Resolved, req.Resolution, principalName(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteOrphan(w http.ResponseWriter, r *http.Request) {
	id, err := requireOrphanID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.reconcileService.DeleteOrphan(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toAPIScanResponse(result ScanResult) api.ScanResponse {
	found := make(map[string]int, len(result.Found))
	for kind, n := range result.Found {
		found[string(kind)] = n
	}
	var skipped []string
	for _, kind := range result.SkippedBackends {
		skipped = append(skipped, string(kind))
	}
	sort.Strings(skipped)
	return api.ScanResponse{
		RecordsChecked:     result.RecordsChecked,
		BlobsChecked:       result.BlobsChecked,
		ListEntriesChecked: result.ListEntriesChecked,
		Found:              found,
		Registered:         result.Registered,
		Errors:             result.Errors,
		SkippedBackends:    skipped,
		DurationMS:         result.Duration.Milliseconds(),
	}
}
