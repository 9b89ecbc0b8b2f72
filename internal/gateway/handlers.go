package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/voxchat-labs/vox-core/internal/orchestrator"
	"github.com/voxchat-labs/vox-core/internal/protocol"
)

// Websocket events carry a type tag so the client can tell the turn outcome
// apart from a terminal failure.
type responseEvent struct {
	Type  string  `json:"type"`
	Text  string  `json:"text"`
	Audio *string `json:"audio"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// handleHealth reports overall status plus per-component liveness when a
// health func is wired; a single down component degrades the whole answer.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok", "version": s.version}
	if s.health == nil {
		return c.JSON(body)
	}

	components := s.health()
	body["components"] = components
	for _, up := range components {
		if !up {
			body["status"] = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(body)
		}
	}
	return c.JSON(body)
}

// handleSpeechToText accepts a multipart upload under the "audio" field and
// returns the transcript. The clip lives only for the duration of the request.
func (s *Server) handleSpeechToText(c *fiber.Ctx) error {
	header, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing audio upload"})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable audio upload"})
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable audio upload"})
	}

	text, err := s.handler.Transcribe(c.Context(), audio)
	if err != nil {
		s.logger.Warn("transcription failed", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to transcribe audio"})
	}
	return c.JSON(fiber.Map{"text": text})
}

// handleAudio serves a synthesized artifact. Artifacts are flat uuid-named
// files, so anything that resolves outside the output dir is rejected.
func (s *Server) handleAudio(c *fiber.Ctx) error {
	name := c.Params("filename")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid filename"})
	}

	path := filepath.Join(s.audioDir, name)
	if _, err := os.Stat(path); err != nil {
		// Cleaned up or never existed; both look the same to the client.
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "audio not found"})
	}
	return c.SendFile(path)
}

// handleSession owns one websocket conversation. Each inbound message is one
// turn: text frames carry a ClientMessage, binary frames carry a recorded WAV
// clip for a voice-origin turn. Turns run concurrently and writes are
// serialized on the connection.
func (s *Server) handleSession(conn *websocket.Conn) {
	sessionID := uuid.NewString()
	logger := s.logger.With(slog.String("session_id", sessionID))
	logger.Info("session opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	var wg sync.WaitGroup

	writeJSON := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(v); err != nil {
			logger.Warn("session write failed", slog.String("error", err.Error()))
		}
	}

	emitOutcome := func(out orchestrator.Outcome, err error) {
		if err != nil {
			logger.Warn("turn failed", slog.String("error", err.Error()))
			writeJSON(errorEvent{Type: "error", Message: "Failed to generate a response. Please try again."})
			return
		}
		writeJSON(responseEvent{Type: "response", Text: out.Text, Audio: out.AudioURL})
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if messageType == websocket.BinaryMessage {
			wg.Add(1)
			go func(audio []byte) {
				defer wg.Done()
				out, err := s.handler.HandleVoiceTurn(ctx, sessionID, audio, protocol.ClientMessage{})
				emitOutcome(out, err)
			}(data)
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			writeJSON(errorEvent{Type: "error", Message: "malformed message"})
			continue
		}

		wg.Add(1)
		go func(msg protocol.ClientMessage) {
			defer wg.Done()
			out, err := s.handler.HandleTurn(ctx, sessionID, msg)
			emitOutcome(out, err)
		}(msg)
	}

	cancel()
	wg.Wait()
	logger.Info("session closed")
}
