package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/gorilla/websocket"
)

type streamSettings struct {
	Confidence *float64 `json:"confidence"`
}

// StreamHandler runs detections over a websocket: each binary message is an
// image and is answered with the same JSON as POST /detect. A text message
// {"confidence":x} changes the threshold for the rest of the connection.
func StreamHandler(detector Detector, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		if cfg.MaxUploadSize > 0 {
			connection.SetReadLimit(cfg.MaxUploadSize)
		}

		confidence := cfg.DefaultConfidence
		frame := 0
		logger.Info("Stream client connected from %s", r.RemoteAddr)

		for {
			messageType, data, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Stream client disconnected after %d frame(s)", frame)
				} else {
					logger.Warning("Stream client disconnected with error: %v", err)
				}
				return
			}

			var reply interface{}
			switch messageType {
			case websocket.TextMessage:
				next, err := parseSettings(data)
				if err != nil {
					reply = map[string]string{"error": err.Error()}
					break
				}
				confidence = next
				reply = map[string]float64{"confidence": confidence}

			case websocket.BinaryMessage:
				frame++
				result, err := detector.Detect(r.Context(), model.DetectionRequest{
					Filename:   fmt.Sprintf("stream-%d", frame),
					ImageData:  data,
					Confidence: confidence,
				})
				if err != nil {
					logger.Error("Error processing stream frame %d: %v", frame, err)
					reply = map[string]string{"error": err.Error()}
					break
				}
				reply = result

			default:
				continue
			}

			if err := connection.WriteJSON(reply); err != nil {
				logger.Warning("Error writing stream reply: %v", err)
				return
			}
		}
	}
}

func parseSettings(data []byte) (float64, error) {
	var settings streamSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return 0, fmt.Errorf("invalid settings: %w", err)
	}
	if settings.Confidence == nil {
		return 0, fmt.Errorf("invalid settings: missing confidence")
	}
	c := *settings.Confidence
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, fmt.Errorf("invalid settings: confidence must be finite")
	}
	return c, nil
}
