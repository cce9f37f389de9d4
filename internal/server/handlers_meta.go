package server

import (
	"net/http"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: "ok", Backends: []api.BackendStatus{}}
	if s.deps.Blobs != nil {
		for i, backend := range s.deps.Blobs.Backends() {
			resp.Backends = append(resp.Backends, api.BackendStatus{
				Kind:      backend.Kind(),
				Available: backend.Available(),
				Preferred: i == 0,
			})
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if s.deps.Info == nil {
		s.writeJSON(w, http.StatusOK, api.InfoResponse{DBPath: s.dbPath})
		return
	}
	info, err := s.deps.Info.StoreInfo(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.InfoResponse{
		DBPath:               s.dbPath,
		SchemaVersion:        info.SchemaVersion,
		Articles:             info.Articles,
		Attachments:          info.Attachments,
		AttachmentBytes:      info.AttachmentBytes,
		AttachmentsByBackend: info.AttachmentsByKind,
		UnresolvedOrphans:    info.UnresolvedOrphans,
	})
}
