package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

// SignatureHeader lleva el HMAC-SHA256 del cuerpo en hex.
const SignatureHeader = "X-Signature"

// Sign devuelve la firma hex de body bajo secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, got string) bool {
	got = strings.TrimPrefix(strings.TrimSpace(got), "sha256=")
	want, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// handleWebhook acepta una propuesta firmada y la encola para el próximo ciclo.
func (s *Server) handleWebhook(c *gin.Context) {
	if s.cfg.WebhookSecret == "" || s.deps.Queue == nil {
		errorResponse(c, http.StatusForbidden, "webhook disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		errorResponse(c, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if !validSignature(s.cfg.WebhookSecret, body, c.GetHeader(SignatureHeader)) {
		slog.Warn("api: webhook bad signature", "remote", c.ClientIP())
		errorResponse(c, http.StatusUnauthorized, "invalid signature")
		return
	}

	var p domain.Proposal
	if err := json.Unmarshal(body, &p); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid json")
		return
	}
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Direction = domain.Direction(strings.ToUpper(string(p.Direction)))
	if err := p.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	p.ReceivedAt = time.Now().UTC()

	if err := s.deps.Queue.Push(p); err != nil {
		if errors.Is(err, ErrQueueFull) {
			errorResponse(c, http.StatusTooManyRequests, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("api: proposal queued", "action", p.Action, "symbol", p.Symbol, "ticket", p.Ticket)
	c.JSON(http.StatusAccepted, gin.H{"queued": s.deps.Queue.Len(), "action": p.Action})
}
