package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"
)

const (
	imageField      = "image"
	confidenceField = "confidence"

	msgNoImage       = "No image provided"
	msgNoSelection   = "No image selected"
	msgUploadTooBig  = "Image too large"
	msgInvalidMethod = "Method not allowed"
)

// Detector runs detections for the HTTP layer.
type Detector interface {
	Detect(ctx context.Context, req model.DetectionRequest) (*model.DetectionResult, error)
	Annotate(ctx context.Context, req model.DetectionRequest) ([]byte, error)
	Models() int
}

// uploadError carries the status a rejected upload maps to.
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string {
	return e.message
}

// DetectHandler handles POST /detect: multipart field "image" plus optional
// "confidence", answered with the detections as JSON.
func DetectHandler(detector Detector, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, msgInvalidMethod, http.StatusMethodNotAllowed)
			return
		}

		req, err := parseUpload(w, r, cfg)
		if err != nil {
			failUpload(w, err, logger)
			return
		}

		result, err := detector.Detect(r.Context(), req)
		if err != nil {
			logger.Error("Error processing image %q: %v", req.Filename, err)
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		respondJSON(w, result, http.StatusOK)
	}
}

// AnnotatedHandler handles POST /detect/annotated with the same inputs as
// DetectHandler and answers with the image as JPEG, detections drawn.
func AnnotatedHandler(detector Detector, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, msgInvalidMethod, http.StatusMethodNotAllowed)
			return
		}

		req, err := parseUpload(w, r, cfg)
		if err != nil {
			failUpload(w, err, logger)
			return
		}

		img, err := detector.Annotate(r.Context(), req)
		if err != nil {
			logger.Error("Error annotating image %q: %v", req.Filename, err)
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(img)))
		w.WriteHeader(http.StatusOK)
		w.Write(img)
	}
}

// parseUpload extracts the image and threshold from a multipart request.
// Only parts that carry a filename count as the image, so a plain "image"
// field is treated as no image at all.
func parseUpload(w http.ResponseWriter, r *http.Request, cfg *config.Config) (model.DetectionRequest, error) {
	req := model.DetectionRequest{Confidence: cfg.DefaultConfidence}

	if cfg.MaxUploadSize > 0 {
		if r.ContentLength > cfg.MaxUploadSize {
			return req, &uploadError{status: http.StatusRequestEntityTooLarge, message: msgUploadTooBig}
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return req, &uploadError{status: http.StatusBadRequest, message: msgNoImage}
	}

	var (
		found      bool
		confidence *string
	)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return req, partError(err)
		}

		switch part.FormName() {
		case imageField:
			if found || !hasFilename(part) {
				break
			}
			found = true
			req.Filename = part.FileName()
			if req.ImageData, err = io.ReadAll(part); err != nil {
				part.Close()
				return req, partError(err)
			}

		case confidenceField:
			if confidence != nil {
				break
			}
			value, err := io.ReadAll(part)
			if err != nil {
				part.Close()
				return req, partError(err)
			}
			v := string(value)
			confidence = &v
		}
		part.Close()
	}

	if !found {
		return req, &uploadError{status: http.StatusBadRequest, message: msgNoImage}
	}
	if req.Filename == "" {
		return req, &uploadError{status: http.StatusBadRequest, message: msgNoSelection}
	}

	if confidence != nil {
		if req.Confidence, err = parseConfidence(*confidence); err != nil {
			return req, err
		}
	}

	return req, nil
}

// hasFilename reports whether the part's Content-Disposition carries a
// filename parameter, empty or not.
func hasFilename(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func partError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return &uploadError{status: http.StatusRequestEntityTooLarge, message: msgUploadTooBig}
	}
	return &uploadError{status: http.StatusBadRequest, message: msgNoImage}
}

// parseConfidence parses the threshold form value, ignoring surrounding
// whitespace. Malformed values are not client errors here: they surface as
// 500 like any other processing failure.
func parseConfidence(value string) (float64, error) {
	confidence, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return 0, fmt.Errorf("could not convert %q to a finite number", value)
	}
	return confidence, nil
}

func failUpload(w http.ResponseWriter, err error, logger *logger.Logger) {
	var ue *uploadError
	if errors.As(err, &ue) {
		respondError(w, ue.message, ue.status)
		return
	}
	logger.Error("Error processing image: %v", err)
	respondError(w, err.Error(), http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
