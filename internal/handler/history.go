package handler

import (
	"net/http"
	"strconv"
	"strings"

	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository"
)

const (
	msgHistoryDisabled = "History is disabled"
	msgInvalidRecordID = "Invalid record id"
	msgRecordNotFound  = "Record not found"
)

type historyResponse struct {
	Records []model.Record `json:"records"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// HistoryHandler serves GET /api/history (recent records, newest first) and
// DELETE /api/history (clear everything).
func HistoryHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			respondError(w, msgHistoryDisabled, http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			filter := &model.RecordFilter{
				Label:  query.Get("label"),
				Limit:  atoiDefault(query.Get("limit"), 50),
				Offset: atoiDefault(query.Get("offset"), 0),
			}

			records, err := repo.GetRecent(filter)
			if err != nil {
				logger.Error("Failed to load history: %v", err)
				respondError(w, "Failed to load history", http.StatusInternalServerError)
				return
			}

			total, err := repo.GetTotalCount(filter)
			if err != nil {
				logger.Error("Failed to count history: %v", err)
				respondError(w, "Failed to load history", http.StatusInternalServerError)
				return
			}

			respondJSON(w, historyResponse{
				Records: records,
				Total:   total,
				Limit:   filter.Limit,
				Offset:  filter.Offset,
			}, http.StatusOK)

		case http.MethodDelete:
			if err := repo.DeleteAll(); err != nil {
				logger.Error("Failed to clear history: %v", err)
				respondError(w, "Failed to clear history", http.StatusInternalServerError)
				return
			}
			logger.Info("History cleared")
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, msgInvalidMethod, http.StatusMethodNotAllowed)
		}
	}
}

// HistoryLabelsHandler serves GET /api/history/labels as {label: count}.
func HistoryLabelsHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			respondError(w, msgHistoryDisabled, http.StatusNotFound)
			return
		}
		if r.Method != http.MethodGet {
			respondError(w, msgInvalidMethod, http.StatusMethodNotAllowed)
			return
		}

		counts, err := repo.GetLabelCounts()
		if err != nil {
			logger.Error("Failed to load label counts: %v", err)
			respondError(w, "Failed to load label counts", http.StatusInternalServerError)
			return
		}
		respondJSON(w, counts, http.StatusOK)
	}
}

// HistoryRecordHandler serves GET /api/history/{id} with one stored record.
func HistoryRecordHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			respondError(w, msgHistoryDisabled, http.StatusNotFound)
			return
		}
		if r.Method != http.MethodGet {
			respondError(w, msgInvalidMethod, http.StatusMethodNotAllowed)
			return
		}

		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/history/"), 10, 64)
		if err != nil || id <= 0 {
			respondError(w, msgInvalidRecordID, http.StatusBadRequest)
			return
		}

		record, err := repo.GetByID(id)
		if err != nil {
			logger.Error("Failed to load record %d: %v", id, err)
			respondError(w, "Failed to load history", http.StatusInternalServerError)
			return
		}
		if record == nil {
			respondError(w, msgRecordNotFound, http.StatusNotFound)
			return
		}
		respondJSON(w, record, http.StatusOK)
	}
}

// atoiDefault parses a positive integer, falling back to def.
func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
