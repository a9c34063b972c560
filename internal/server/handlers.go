package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/optimizer"
	"github.com/pricewise/pricewise/internal/scraper"
)

type startScrapingRequest struct {
	TargetProducts      []string `json:"target_products"`
	MaxProductsPerStore int      `json:"max_products_per_store"`
}

type optimizePriceRequest struct {
	Product     model.CatalogItem              `json:"product"`
	Competitors []model.CompetitorObservation  `json:"competitors"`
	Constraints *model.OptimizationConstraints `json:"constraints"`
}

type optimizeBatchRequest struct {
	Products          []model.CatalogItem                      `json:"products"`
	CompetitorData    map[string][]model.CompetitorObservation `json:"competitor_data"`
	GlobalConstraints *model.OptimizationConstraints           `json:"global_constraints"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartScraping(w http.ResponseWriter, r *http.Request) {
	var req startScrapingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.TargetProducts) == 0 {
		writeError(w, http.StatusBadRequest, "target_products is required")
		return
	}

	taskID, err := s.orch.Submit(r.Context(), req.TargetProducts, req.MaxProductsPerStore)
	if err != nil {
		s.log.Error("failed to start scrape job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start scraping")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"status":  string(model.JobStatusPending),
		"message": "scraping started",
	})
}

func (s *Server) handleScrapingProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	job, err := s.orch.Progress(r.Context(), taskID)
	if err != nil {
		if eris.Is(err, scraper.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown task id")
			return
		}
		s.log.Error("failed to read job progress", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read progress")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleScrapingResults(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	obs, err := s.orch.Results(r.Context(), taskID)
	if err != nil {
		switch {
		case eris.Is(err, scraper.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown task id")
		case eris.Is(err, scraper.ErrNotReady):
			writeError(w, http.StatusConflict, "scraping not finished")
		default:
			s.log.Error("failed to read job results", zap.String("task_id", taskID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read results")
		}
		return
	}
	if obs == nil {
		obs = []model.CompetitorObservation{}
	}

	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleOptimizePrice(w http.ResponseWriter, r *http.Request) {
	var req optimizePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	constraints := model.DefaultConstraints()
	if req.Constraints != nil {
		constraints = *req.Constraints
	}

	rec, err := s.opt.Optimize(req.Product, req.Competitors, constraints)
	if err != nil {
		if eris.Is(err, optimizer.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("optimization failed", zap.String("product_id", req.Product.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "optimization failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleOptimizeBatch(w http.ResponseWriter, r *http.Request) {
	var req optimizeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Products) == 0 {
		writeError(w, http.StatusBadRequest, "products is required")
		return
	}

	constraints := model.DefaultConstraints()
	if req.GlobalConstraints != nil {
		constraints = *req.GlobalConstraints
	}

	result, err := s.batch.OptimizeBatch(r.Context(), req.Products, req.CompetitorData, constraints)
	if err != nil {
		if eris.Is(err, optimizer.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("batch optimization failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "batch optimization failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
