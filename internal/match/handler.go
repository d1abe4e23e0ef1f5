package match

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/code-arena/internal/auth/jwt"
	httperrors "github.com/gokatarajesh/code-arena/pkg/http/errors"
	"github.com/gokatarajesh/code-arena/pkg/http/ws"
)

// Submitter forwards a player's code to judging. The judge executes it out
// of process and reports pass counts back through the submission intake.
type Submitter interface {
	Submit(ctx context.Context, matchID, userID uuid.UUID, questionID int, code, language string) error
}

// RatingSource resolves a player's current rating. Token claims carry the
// rating at issue time, which goes stale after every settlement.
type RatingSource interface {
	Rating(ctx context.Context, userID uuid.UUID) (int, error)
}

// WSUpgrader handles WebSocket upgrades.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to configured CORS origins for production
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler manages WebSocket connections and routes match-related messages.
type Handler struct {
	queue      RatingQueue
	matcher    *Matcher
	controller *Controller
	store      *Store
	submitter  Submitter
	ratings    RatingSource
	hub        *ws.Hub
	tokens     *jwt.Manager
	logger     zerolog.Logger
}

// NewHandler creates a match WebSocket handler.
func NewHandler(queue RatingQueue, matcher *Matcher, controller *Controller, store *Store, submitter Submitter, ratings RatingSource, hub *ws.Hub, tokens *jwt.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		queue:      queue,
		matcher:    matcher,
		controller: controller,
		store:      store,
		submitter:  submitter,
		ratings:    ratings,
		hub:        hub,
		tokens:     tokens,
		logger:     logger.With().Str("component", "match_ws").Logger(),
	}
}

// HandleWebSocket upgrades the HTTP connection and authenticates the user.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Missing token")
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
		return
	}

	conn, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, claims.UserID, claims.DisplayName, claims.Rating)
}

// HandleConnection drives a single player's connection until it closes.
func (h *Handler) HandleConnection(conn *websocket.Conn, userID uuid.UUID, displayName string, userRating int) {
	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.RegisterConnection(userID, wsConn)

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), userID, displayName, userRating, msg)
	})

	// Cleanup on disconnect: a queued player must not linger in the queue.
	// When a reconnect has already replaced this connection, the new pump
	// owns the registration and this one must leave queue and hub alone.
	if !h.hub.ReleaseConnection(userID, wsConn) {
		return
	}
	if err := h.queue.Dequeue(context.Background(), userID); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("dequeue on disconnect failed")
	}
}

func (h *Handler) handleMessage(ctx context.Context, userID uuid.UUID, displayName string, userRating int, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinQueue:
		return h.handleJoinQueue(ctx, userID, displayName, userRating)
	case ws.TypeLeaveQueue:
		return h.handleLeaveQueue(ctx, userID)
	case ws.TypeReady:
		return h.handleReady(ctx, userID, msg.Payload)
	case ws.TypeSubmitCode:
		return h.handleSubmitCode(ctx, userID, msg.Payload)
	default:
		return h.sendError(userID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleJoinQueue(ctx context.Context, userID uuid.UUID, displayName string, userRating int) error {
	// Queue membership and live-match membership are mutually exclusive.
	if _, inMatch := h.store.ByUser(userID); inMatch {
		return h.sendError(userID, httperrors.ErrCodeAlreadyInMatch, "Already in an active match")
	}
	queued, err := h.queue.Contains(ctx, userID)
	if err != nil {
		return h.sendError(userID, httperrors.ErrCodeEnqueueFailed, "Failed to join queue")
	}
	if queued {
		return h.sendError(userID, httperrors.ErrCodeAlreadyInQueue, "Already in queue")
	}

	// Claims carry the rating at token-issue time; prefer the current one.
	if current, err := h.ratings.Rating(ctx, userID); err == nil {
		userRating = current
	} else {
		h.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("rating lookup failed, using token rating")
	}

	entry := QueueEntry{
		UserID:      userID,
		DisplayName: displayName,
		Rating:      userRating,
		JoinedAt:    time.Now().UnixMilli(),
	}
	if err := h.queue.Enqueue(ctx, entry); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("enqueue failed")
		return h.sendError(userID, httperrors.ErrCodeEnqueueFailed, "Failed to join queue")
	}

	position, err := h.queue.PositionOf(ctx, userID)
	if err != nil {
		position = -1
	}
	h.hub.SendToUser(userID, ws.TypeQueueStatus, ws.QueueStatusPayload{
		Position:             position,
		EstimatedWaitSeconds: 30,
	})

	opponent, err := h.matcher.Match(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("matchmaking failed")
		return nil // stay queued; a later joiner can still pair with us
	}
	if opponent == nil {
		return nil
	}

	_, err = h.controller.CreateMatch(ctx,
		Participant{UserID: userID, DisplayName: displayName, Rating: userRating},
		Participant{UserID: opponent.UserID, DisplayName: opponent.DisplayName, Rating: opponent.Rating},
	)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("match creation failed")
		return h.sendError(userID, httperrors.ErrCodeMatchCreationFailed, "Failed to create match")
	}
	return nil
}

func (h *Handler) handleLeaveQueue(ctx context.Context, userID uuid.UUID) error {
	if err := h.queue.Dequeue(ctx, userID); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("leave queue failed")
	}
	return nil
}

func (h *Handler) handleReady(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var req ws.ReadyPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidPayload, "Invalid ready payload")
	}
	matchID, err := uuid.Parse(req.MatchID)
	if err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidMatchID, "Invalid match ID")
	}

	if !h.controller.MarkReady(matchID, userID) {
		return h.sendError(userID, httperrors.ErrCodeInvalidState, "Cannot mark ready")
	}
	return nil
}

func (h *Handler) handleSubmitCode(ctx context.Context, userID uuid.UUID, payload json.RawMessage) error {
	var req ws.SubmitCodePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidPayload, "Invalid submission payload")
	}
	matchID, err := uuid.Parse(req.MatchID)
	if err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidMatchID, "Invalid match ID")
	}

	if err := h.submitter.Submit(ctx, matchID, userID, req.QuestionID, req.Code, req.Language); err != nil {
		h.logger.Warn().Err(err).
			Str("match_id", matchID.String()).
			Str("user_id", userID.String()).
			Msg("submission rejected")
		return h.sendError(userID, httperrors.ErrCodeSubmitFailed, err.Error())
	}
	return nil
}

func (h *Handler) sendError(userID uuid.UUID, code, message string) error {
	h.hub.SendToUser(userID, ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
	return nil
}
