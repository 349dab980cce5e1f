package handler

import "net/http"

// HealthHandler reports liveness and the number of loaded model instances.
func HealthHandler(detector Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]interface{}{
			"status": "ok",
			"models": detector.Models(),
		}, http.StatusOK)
	}
}
