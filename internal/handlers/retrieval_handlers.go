package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"assistant-backend/internal/models"
	"assistant-backend/internal/retrieval"
	"assistant-backend/internal/services"
	"assistant-backend/pkg/httputil"
)

// RetrievalService defines the interface expected from the retrieval service.
type RetrievalService interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	Stores() ([]models.StoreResponse, error)
}

// CatalogService lists what a conversation can be configured with.
type CatalogService interface {
	Contexts() []models.ContextResponse
	Providers() models.ProvidersResponse
}

// KnowledgeHandlers serves knowledge search and catalog endpoints.
type KnowledgeHandlers struct {
	retrieval RetrievalService
	catalog   CatalogService
}

// NewKnowledgeHandlers creates a new KnowledgeHandlers instance.
func NewKnowledgeHandlers(retrievalSvc RetrievalService, catalog CatalogService) *KnowledgeHandlers {
	return &KnowledgeHandlers{retrieval: retrievalSvc, catalog: catalog}
}

// HandleSearch handles POST /v1/retrieval/search.
func (h *KnowledgeHandlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.retrieval.Search(r.Context(), req)
	if err != nil {
		respondRetrievalError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleListDocuments handles GET /v1/retrieval/documents.
func (h *KnowledgeHandlers) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	stores, err := h.retrieval.Stores()
	if err != nil {
		respondRetrievalError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, stores)
}

// HandleListContexts handles GET /v1/knowledge/contexts.
func (h *KnowledgeHandlers) HandleListContexts(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.catalog.Contexts())
}

// HandleListProviders handles GET /v1/providers.
func (h *KnowledgeHandlers) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.catalog.Providers())
}

func respondRetrievalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrRetrievalDisabled):
		httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, retrieval.ErrRetrievalConfiguration):
		log.Printf("ERROR [KnowledgeHandlers] %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Printf("ERROR [KnowledgeHandlers] Retrieval failed: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Retrieval failed due to an internal error")
	}
}
