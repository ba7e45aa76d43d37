package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mroshb/tiktok_claims/internal/middleware"
	"github.com/mroshb/tiktok_claims/internal/models"
	"github.com/mroshb/tiktok_claims/pkg/errors"
	"github.com/mroshb/tiktok_claims/pkg/logger"
	"github.com/mroshb/tiktok_claims/pkg/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type ClaimIntake interface {
	CreateClaim(ctx context.Context, claim *models.Claim) error
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
}

type HistoryReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ClaimHistoryEntry, error)
}

type Dispatcher interface {
	Submit(event models.ClaimEvent) bool
}

type ClaimHandler struct {
	claims     ClaimIntake
	history    HistoryReader
	dispatcher Dispatcher
}

func NewClaimHandler(claims ClaimIntake, history HistoryReader, dispatcher Dispatcher) *ClaimHandler {
	return &ClaimHandler{
		claims:     claims,
		history:    history,
		dispatcher: dispatcher,
	}
}

// CreateClaim stores a claim for the authenticated user and hands it to the
// processor. The response only acknowledges receipt; clients poll GetClaim or
// subscribe to the outcome channel.
func (h *ClaimHandler) CreateClaim(c *fiber.Ctx) error {
	var req struct {
		RewardAmount json.RawMessage `json:"rewardAmount"`
		VideoIndex   json.RawMessage `json:"videoIndex"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	claim := &models.Claim{
		UID:          middleware.UID(c),
		RewardAmount: rawAmount(req.RewardAmount),
		VideoIndex:   videoIndex(req.VideoIndex),
	}
	if err := h.claims.CreateClaim(c.UserContext(), claim); err != nil {
		logger.Error("Failed to create claim", "uid", claim.UID, "error", err)
		return errorResponse(c, err)
	}

	logger.Info("Claim created", "claim_id", claim.ID, "uid", claim.UID, "video_index", claim.VideoIndex)
	if !h.dispatcher.Submit(claim.Event()) {
		logger.Warn("Claim not dispatched immediately", "claim_id", claim.ID)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":        claim.ID,
		"processed": nil,
	})
}

// GetClaim returns a claim owned by the authenticated user.
func (h *ClaimHandler) GetClaim(c *fiber.Ctx) error {
	id := c.Params("id")
	if !utils.IsID(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "claim not found"})
	}

	claim, err := h.claims.GetClaim(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	if claim.UID != middleware.UID(c) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "claim not found"})
	}
	return c.JSON(claim)
}

func (h *ClaimHandler) ListHistory(c *fiber.Ctx) error {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.ListByUser(c.UserContext(), middleware.UID(c), limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// rawAmount keeps the submitted amount as text so the validator sees what the
// client sent: JSON strings are unquoted, numbers and literals kept verbatim.
func rawAmount(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// videoIndex reads the optional, display-only video index. Integers, integral
// floats and numeric strings are kept; anything else is dropped so it cannot
// block the claim.
func videoIndex(raw json.RawMessage) *int {
	text := strings.TrimSpace(rawAmount(raw))
	if text == "" || text == "null" {
		return nil
	}
	if n, err := strconv.Atoi(text); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		logger.Debug("Ignoring malformed video index", "video_index", text)
		return nil
	}
	n := int(f)
	return &n
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		status, message = fiber.StatusNotFound, "not found"
	case errors.ErrCodeValidation:
		status, message = fiber.StatusBadRequest, "invalid request"
	case errors.ErrCodeConflict, errors.ErrCodeAlreadyExists:
		status, message = fiber.StatusConflict, "conflict"
	case errors.ErrCodeUnavailable:
		status, message = fiber.StatusServiceUnavailable, "service unavailable"
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}
