package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/portal/internal/middleware"
	"github.com/hitoshi/portal/internal/model"
)

// NewsServiceInterface はニュースハンドラーが必要とするサービスインターフェース。
type NewsServiceInterface interface {
	List(ctx context.Context) []model.Bulletin
}

// DocumentCatalogInterface は資料ハンドラーが必要とするカタログインターフェース。
type DocumentCatalogInterface interface {
	ListFor(role model.Role) []model.Document
	Get(id string, role model.Role) (*model.Document, error)
}

// ContentHandler はニュースと社内資料のHTTPハンドラー。
type ContentHandler struct {
	news      NewsServiceInterface
	documents DocumentCatalogInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(news NewsServiceInterface, documents DocumentCatalogInterface) *ContentHandler {
	return &ContentHandler{
		news:      news,
		documents: documents,
	}
}

type bulletinListResponse struct {
	Bulletins []model.Bulletin `json:"bulletins"`
}

type documentListResponse struct {
	Documents []model.Document `json:"documents"`
}

// ListNews はニュース一覧を返す。
// GET /api/news
func (h *ContentHandler) ListNews(w http.ResponseWriter, r *http.Request) {
	bulletins := h.news.List(r.Context())
	if bulletins == nil {
		bulletins = []model.Bulletin{}
	}
	writeJSON(w, http.StatusOK, bulletinListResponse{Bulletins: bulletins})
}

// ListDocuments はロールで閲覧できる資料の一覧を返す。
// GET /api/documents
func (h *ContentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	docs := h.documents.ListFor(identity.Role)
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, documentListResponse{Documents: docs})
}

// GetDocument は資料1件を返す。ロールが不足する場合は403。
// GET /api/documents/{id}
func (h *ContentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return
	}

	doc, err := h.documents.Get(chi.URLParam(r, "id"), identity.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
