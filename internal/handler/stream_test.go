package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/gorilla/websocket"
)

func dialStream(t *testing.T, detector Detector) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(StreamHandler(detector, testConfig(), logger.NewDiscard()))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStreamHandler_DetectsBinaryFrames(t *testing.T) {
	detector := &fakeDetector{result: &model.DetectionResult{
		Detections: []model.Detection{{BBox: [4]float64{1, 2, 3, 4}, Confidence: 0.9, Label: "cat", ClassID: 15}},
		ImageSize:  model.ImageSize{Width: 8, Height: 6},
	}}
	conn := dialStream(t, detector)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("frame")); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	var result model.DetectionResult
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatalf("Failed to read reply: %v", err)
	}
	if len(result.Detections) != 1 || result.Detections[0].Label != "cat" || result.ImageSize.Width != 8 {
		t.Errorf("Unexpected reply: %+v", result)
	}
	if detector.lastRequest().Confidence != 0.25 || detector.lastRequest().Filename != "stream-1" {
		t.Errorf("Unexpected request: %+v", detector.last)
	}
}

func TestStreamHandler_UpdatesConfidence(t *testing.T) {
	detector := &fakeDetector{}
	conn := dialStream(t, detector)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"confidence":0.6}`)); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	var ack map[string]float64
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("Failed to read ack: %v", err)
	}
	if ack["confidence"] != 0.6 {
		t.Errorf("Expected ack 0.6, got %v", ack)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("frame")); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	var result model.DetectionResult
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatalf("Failed to read reply: %v", err)
	}
	if detector.lastRequest().Confidence != 0.6 {
		t.Errorf("Expected confidence 0.6, got %v", detector.lastRequest().Confidence)
	}
}

func TestStreamHandler_Errors(t *testing.T) {
	conn := dialStream(t, &fakeDetector{err: errors.New("Could not decode image")})

	for _, msg := range []struct {
		kind int
		data string
		want string
	}{
		{websocket.TextMessage, `not json`, "invalid settings"},
		{websocket.TextMessage, `{}`, "missing confidence"},
		{websocket.BinaryMessage, "garbage", "Could not decode image"},
	} {
		if err := conn.WriteMessage(msg.kind, []byte(msg.data)); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read reply: %v", err)
		}
		var reply map[string]string
		if err := json.Unmarshal(data, &reply); err != nil {
			t.Fatalf("Failed to decode reply %q: %v", data, err)
		}
		if !strings.Contains(reply["error"], msg.want) {
			t.Errorf("Expected error containing %q, got %q", msg.want, reply["error"])
		}
	}
}
