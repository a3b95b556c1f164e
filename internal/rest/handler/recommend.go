package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bunrouter"
	"github.com/vestiapp/vesti/internal/ai"
	"github.com/vestiapp/vesti/internal/recommend"
	"github.com/vestiapp/vesti/pkg/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds the request body; photos arrive base64-encoded.
const maxBodyBytes = 12 << 20

// recommendRequest is the JSON request body for the recommendations endpoint.
type recommendRequest struct {
	UserID   string   `json:"userId"`
	Photo    string   `json:"photo"`
	Colors   []string `json:"colors"`
	SkinTone string   `json:"skinTone"`
	Occasion string   `json:"occasion"`
	Weather  string   `json:"weather"`
	Gender   string   `json:"gender"`
	Genre    string   `json:"genre"`
	Count    int      `json:"count"`
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RecommendHandler handles the recommendation endpoints.
type RecommendHandler struct {
	engine  *recommend.Engine
	timeout time.Duration
	logger  *zap.Logger
}

// NewRecommendHandler creates a new recommendation handler. The timeout is the
// hard per-request deadline for the pipeline.
func NewRecommendHandler(engine *recommend.Engine, timeout time.Duration, logger *zap.Logger) *RecommendHandler {
	return &RecommendHandler{
		engine:  engine,
		timeout: timeout,
		logger:  logger.Named("rest_recommend"),
	}
}

// CreateRecommendations handles POST /v1/recommendations.
func (h *RecommendHandler) CreateRecommendations(w http.ResponseWriter, req bunrouter.Request) error {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "unable to read request body")
	}

	var in recommendRequest
	if err := sonic.Unmarshal(body, &in); err != nil {
		return writeError(w, http.StatusBadRequest, "request body is not valid JSON")
	}

	photo, err := base64.StdEncoding.DecodeString(in.Photo)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "photo must be base64 encoded")
	}

	ctx, cancel := context.WithTimeout(req.Context(), h.timeout)
	defer cancel()

	resp, err := h.engine.Recommend(ctx, &recommend.Request{
		Identity: identityFor(&in, req.Request),
		UserID:   in.UserID,
		Photo:    photo,
		Colors:   in.Colors,
		SkinTone: in.SkinTone,
		Occasion: in.Occasion,
		Weather:  in.Weather,
		Gender:   in.Gender,
		Genre:    in.Genre,
		Count:    in.Count,
	})
	if err != nil {
		return h.writeEngineError(w, err)
	}

	return bunrouter.JSON(w, resp)
}

// writeEngineError maps pipeline errors onto HTTP statuses with generic,
// sanitized messages; internal detail goes to the log only.
func (h *RecommendHandler) writeEngineError(w http.ResponseWriter, err error) error {
	var validationErr *recommend.ValidationError
	if errors.As(err, &validationErr) {
		return writeError(w, http.StatusBadRequest, validationErr.Error())
	}

	var rateLimitErr *recommend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		retryAfter := int(time.Until(rateLimitErr.ResetAt).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	}

	switch {
	case errors.Is(err, ai.ErrProvidersBusy):
		w.Header().Set("Retry-After", "30")
		return writeError(w, http.StatusServiceUnavailable, "all providers are busy, try again shortly")
	case errors.Is(err, recommend.ErrTimedOut):
		return writeError(w, http.StatusGatewayTimeout, "recommendation timed out")
	}

	h.logger.Error("Recommendation pipeline failed", zap.Error(err))
	return writeError(w, http.StatusInternalServerError, "unable to generate recommendations")
}

// identityFor picks the rate limit identity: the user id when present,
// otherwise the client address.
func identityFor(in *recommendRequest, req *http.Request) string {
	if in.UserID != "" {
		return in.UserID
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, _ := sonic.Marshal(errorResponse{
		Error: utils.SanitizeUserMessage(message, utils.MaxUserMessageLength),
	})
	_, _ = w.Write(payload)
	return nil
}
