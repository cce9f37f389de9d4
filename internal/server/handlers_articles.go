package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const maxArticleTitleLength = 300

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req api.ArticleCreateRequest
	if !s.readJSON(w, r, &req, false) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("title is required"), ErrCodeMissingRequired))
		return
	}
	if len(title) > maxArticleTitleLength {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("title must be at most %d characters", maxArticleTitleLength), ErrCodeInvalidArgument))
		return
	}

	article := models.Article{Title: title}
	if err := s.deps.Articles.CreateArticle(r.Context(), &article); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if article.AttachmentIDs == nil {
		article.AttachmentIDs = []string{}
	}

	s.writeJSON(w, http.StatusCreated, article)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := requireArticleID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	article, err := s.deps.Articles.GetArticle(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if article == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("article not found"), ErrCodeArticleNotFound))
		return
	}
	if article.AttachmentIDs == nil {
		article.AttachmentIDs = []string{}
	}
	s.writeJSON(w, http.StatusOK, article)
}
