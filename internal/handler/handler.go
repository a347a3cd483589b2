// Package handler exposes the engines over HTTP. Every response carries a
// status field and an error field so clients can tell "try again" from
// "session over" from "hard failure" without parsing messages.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/easeaico/project-echo/internal/dailyloop"
	"github.com/easeaico/project-echo/internal/eventloop"
	"github.com/easeaico/project-echo/internal/session"
	"github.com/easeaico/project-echo/internal/storage"
	"github.com/easeaico/project-echo/internal/types"
)

const (
	statusSuccess = "success"
	statusActive  = "active"
	statusEnded   = "ended"
	statusError   = "error"
)

// AgentBuilder provisions a new agent from a description.
type AgentBuilder interface {
	Build(ctx context.Context, userID int64, description string) (*types.AgentRecord, error)
}

// DailyEngine advances a daily-chat session by one turn.
type DailyEngine interface {
	Step(ctx context.Context, sessionID string, userID, agentID int64, state *session.DailyState, input string) (*dailyloop.Result, error)
}

// EventEngine advances an event-dialogue session by one turn.
type EventEngine interface {
	Step(ctx context.Context, sessionID string, userID, agentID int64, state *session.EventState, input string) (*eventloop.Result, error)
}

// AgentStore loads agent rows.
type AgentStore interface {
	GetByID(ctx context.Context, agentID int64) (*types.AgentRecord, error)
	UpdateProfile(ctx context.Context, agentID int64, profile *types.AgentProfile) error
}

// GoalStore loads goal documents.
type GoalStore interface {
	Get(ctx context.Context, agentID int64) (*types.GoalSet, error)
}

// ChainStore loads event trees.
type ChainStore interface {
	Get(ctx context.Context, agentID int64) (*types.EventChain, error)
}

// ChainGenerator seeds the first event when an agent has no tree yet.
type ChainGenerator interface {
	GenerateInitialEvent(ctx context.Context, agentID int64, profile *types.AgentProfile, goals *types.GoalSet) (*types.EventChain, error)
}

// GlobalEventStore pages through the global event registry.
type GlobalEventStore interface {
	ListAfter(ctx context.Context, cursor string, limit int) ([]storage.GlobalEvent, bool, error)
}

// MessageReader reads the flat durable message log.
type MessageReader interface {
	ListRecent(ctx context.Context, sessionID string, limit int) ([]types.DialogMessage, error)
}

// ImageService renders avatars. Optional.
type ImageService interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Handler holds the wired collaborators for all routes.
type Handler struct {
	builder      AgentBuilder
	daily        DailyEngine
	events       EventEngine
	sessions     *session.Manager
	agents       AgentStore
	goals        GoalStore
	chains       ChainStore
	chainGen     ChainGenerator
	globalEvents GlobalEventStore
	messages     MessageReader
	images       ImageService
}

// Config bundles the handler dependencies. Images may be nil.
type Config struct {
	Builder      AgentBuilder
	Daily        DailyEngine
	Events       EventEngine
	Sessions     *session.Manager
	Agents       AgentStore
	Goals        GoalStore
	Chains       ChainStore
	ChainGen     ChainGenerator
	GlobalEvents GlobalEventStore
	Messages     MessageReader
	Images       ImageService
}

// New returns a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		builder:      cfg.Builder,
		daily:        cfg.Daily,
		events:       cfg.Events,
		sessions:     cfg.Sessions,
		agents:       cfg.Agents,
		goals:        cfg.Goals,
		chains:       cfg.Chains,
		chainGen:     cfg.ChainGen,
		globalEvents: cfg.GlobalEvents,
		messages:     cfg.Messages,
		images:       cfg.Images,
	}
}

type createAgentRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// CreateAgent handles POST /v1/agents.
func (h *Handler) CreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	record, err := h.builder.Build(c.Request.Context(), req.UserID, req.Description)
	if err != nil {
		slog.Error("agent creation failed", "user_id", req.UserID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": statusSuccess,
		"error":  "",
		"data":   record,
	})
}

type dailyRequest struct {
	AgentID   int64  `json:"agent_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

type dailyResponse struct {
	Status          string `json:"status"`
	Error           string `json:"error"`
	SessionID       string `json:"session_id"`
	Content         string `json:"content"`
	WaitingForInput bool   `json:"waiting_for_input"`
}

// DailyChat handles POST /api/daily. A missing or absent session id starts
// a fresh session.
func (h *Handler) DailyChat(c *gin.Context) {
	var req dailyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	record, state, err := h.resolveDailySession(ctx, &req)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	result, err := h.daily.Step(ctx, record.SessionID, req.UserID, req.AgentID, state, req.Content)
	if err != nil {
		slog.Error("daily step failed", "session_id", record.SessionID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := h.saveDaily(ctx, record, state, result.Ended); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	status := statusActive
	if result.Ended {
		status = statusEnded
	}
	c.JSON(http.StatusOK, dailyResponse{
		Status:          status,
		SessionID:       record.SessionID,
		Content:         result.Content,
		WaitingForInput: result.WaitingForInput,
	})
}

func (h *Handler) resolveDailySession(ctx context.Context, req *dailyRequest) (*storage.DialogRecord, *session.DailyState, error) {
	if req.SessionID != "" {
		record, state, err := h.sessions.LoadDaily(ctx, req.SessionID)
		if err != nil {
			return nil, nil, err
		}
		if record != nil {
			return record, state, nil
		}
		// Unknown session ids fall through to a fresh session.
		slog.Warn("daily session not found, starting fresh", "session_id", req.SessionID)
	}
	return h.sessions.CreateDaily(ctx, req.UserID, req.AgentID)
}

// saveDaily retries once on a revision conflict: reload the row for a
// fresh revision and reapply this turn's state.
func (h *Handler) saveDaily(ctx context.Context, record *storage.DialogRecord, state *session.DailyState, ended bool) error {
	err := h.sessions.SaveDaily(ctx, record, state, ended)
	if !errors.Is(err, storage.ErrConflict) {
		return err
	}
	slog.Warn("daily session save conflict, retrying", "session_id", record.SessionID)
	fresh, _, loadErr := h.sessions.LoadDaily(ctx, record.SessionID)
	if loadErr != nil || fresh == nil {
		return err
	}
	record.Revision = fresh.Revision
	return h.sessions.SaveDaily(ctx, record, state, ended)
}

type eventRequest struct {
	AgentID   int64  `json:"agent_id" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
	IssueID   string `json:"issue_id"`
	SessionID string `json:"session_id"`
}

type eventResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error"`
	SessionID   string `json:"session_id"`
	IssueID     string `json:"issue_id"`
	Content     string `json:"content"`
	EventStatus string `json:"event_status"`
	IsEnded     bool   `json:"is_ended"`
}

// EventChat handles POST /api/event.
func (h *Handler) EventChat(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	record, state, err := h.resolveEventSession(ctx, &req)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if record.Status == storage.SessionEnded {
		respondError(c, http.StatusConflict, fmt.Errorf("session %s already ended", record.SessionID))
		return
	}

	result, err := h.events.Step(ctx, record.SessionID, req.UserID, req.AgentID, state, req.Content)
	if err != nil {
		slog.Error("event step failed", "session_id", record.SessionID, "error", err.Error())
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := h.sessions.SaveEvent(ctx, record, state, result.Ended); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	status := statusActive
	if result.Ended {
		status = statusEnded
	}
	c.JSON(http.StatusOK, eventResponse{
		Status:      status,
		SessionID:   record.SessionID,
		IssueID:     result.IssueID,
		Content:     result.Content,
		EventStatus: result.EventStatus,
		IsEnded:     result.Ended,
	})
}

func (h *Handler) resolveEventSession(ctx context.Context, req *eventRequest) (*storage.DialogRecord, *session.EventState, error) {
	if req.SessionID != "" {
		record, state, err := h.sessions.LoadEvent(ctx, req.SessionID)
		if err != nil {
			return nil, nil, err
		}
		if record != nil {
			return record, state, nil
		}
		slog.Warn("event session not found, starting fresh", "session_id", req.SessionID)
	}

	tree, err := h.resolveChain(ctx, req.AgentID)
	if err != nil {
		return nil, nil, err
	}
	issueID := req.IssueID
	if issueID == "" {
		issueID = types.IntroEventID
	}
	state := session.NewEventState(issueID, tree)
	record, err := h.sessions.CreateEvent(ctx, req.UserID, req.AgentID, state)
	if err != nil {
		return nil, nil, err
	}
	return record, state, nil
}

// resolveChain fetches the agent's tree, generating the introductory event
// when the agent has none yet.
func (h *Handler) resolveChain(ctx context.Context, agentID int64) (*types.EventChain, error) {
	tree, err := h.chains.Get(ctx, agentID)
	if err == nil {
		return tree, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	agent, err := h.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	goals, err := h.goals.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return h.chainGen.GenerateInitialEvent(ctx, agentID, &agent.Profile, goals)
}

// ListGlobalEvents handles GET /api/v1/events with cursor pagination.
func (h *Handler) ListGlobalEvents(c *gin.Context) {
	cursor := c.Query("cursor")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	events, hasMore, err := h.globalEvents.ListAfter(c.Request.Context(), cursor, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	nextCursor := ""
	if len(events) > 0 {
		nextCursor = events[len(events)-1].GlobalEventID
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusSuccess,
		"error":  "",
		"data": gin.H{
			"events":      events,
			"has_more":    hasMore,
			"next_cursor": nextCursor,
		},
	})
}

// ListMessages handles GET /api/v1/messages?session_id=&limit=. It reads
// the flat durable log, so messages survive even when a session blob write
// failed.
func (h *Handler) ListMessages(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		respondError(c, http.StatusBadRequest, fmt.Errorf("session_id is required"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	messages, err := h.messages.ListRecent(c.Request.Context(), sessionID, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusSuccess,
		"error":  "",
		"data":   gin.H{"messages": messages},
	})
}

// Avatar handles GET /api/avatar?agent_id=. The generated image is cached
// on the profile so repeat calls do not hit the image model again.
func (h *Handler) Avatar(c *gin.Context) {
	agentID, err := strconv.ParseInt(c.Query("agent_id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid agent_id %q", c.Query("agent_id")))
		return
	}
	ctx := c.Request.Context()

	agent, err := h.agents.GetByID(ctx, agentID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			code = http.StatusNotFound
		}
		respondError(c, code, err)
		return
	}

	if agent.Profile.AvatarURL == "" {
		if h.images == nil {
			respondError(c, http.StatusServiceUnavailable, fmt.Errorf("image generation is not configured"))
			return
		}
		avatarURL, err := h.images.Generate(ctx, avatarPrompt(&agent.Profile))
		if err != nil {
			slog.Error("avatar generation failed", "agent_id", agentID, "error", err.Error())
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		agent.Profile.AvatarURL = avatarURL
		if err := h.agents.UpdateProfile(ctx, agentID, &agent.Profile); err != nil {
			slog.Warn("failed to cache avatar url", "agent_id", agentID, "error", err.Error())
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": statusSuccess,
		"error":  "",
		"data":   gin.H{"avatar_url": agent.Profile.AvatarURL},
	})
}

func avatarPrompt(profile *types.AgentProfile) string {
	return fmt.Sprintf("请生成一张人物头像：%s。人物是%s，风格为精致的动漫插画，正面半身像，柔和光线。", profile.Appearance, profile.Name)
}

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{
		"status": statusError,
		"error":  err.Error(),
	})
}
