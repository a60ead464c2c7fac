package api

import (
	"net/http"
	"strings"

	"ludo-service/internal/middleware"
	"ludo-service/internal/service"
	"ludo-service/internal/service/match"
	"ludo-service/internal/ws"
	pkgAuth "ludo-service/pkg/auth"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/protocol"
	"ludo-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Game, services.Hub, services.Gateway)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/ludo/v1")
	{
		if gin.Mode() == gin.DebugMode {
			v1.POST("/auth/token", handler.IssueDebugToken)
		}

		authed := v1.Group("/")
		authed.Use(middleware.AuthRequired())
		{
			authed.GET("/wallet", handler.GetWallet)
			authed.GET("/stakes", handler.ListStakes)

			authed.POST("/matches", handler.CreateMatch)
			authed.POST("/matches/join", handler.JoinMatch)
			authed.GET("/matches/:matchId", handler.GetMatchRecord)
			authed.POST("/matches/:matchId/start", handler.StartMatch)
			authed.POST("/matches/:matchId/cancel", handler.CancelMatch)
			authed.POST("/matches/:matchId/actions", handler.SubmitAction)
			authed.GET("/matches/:matchId/sync", handler.SyncMatch)
			authed.GET("/matches/:matchId/presence", handler.MatchPresence)
		}
	}

	r.GET("/ws/matches/:matchId", middleware.AuthRequired(), wsHandler.HandleMatchWS)
}

type debugTokenBody struct {
	PlayerID string `json:"playerId" binding:"required"`
	Identity string `json:"identity"`
}

type createMatchBody struct {
	TierID int64 `json:"tierId" binding:"min=0"`
	Wager  int64 `json:"wager" binding:"min=0"`
	Reward int64 `json:"reward" binding:"min=0"`
}

type joinMatchBody struct {
	RoomCode string `json:"roomCode" binding:"required"`
}

// IssueDebugToken mints a player token without a login. Debug mode only.
func (h *Handler) IssueDebugToken(c *gin.Context) {
	var body debugTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	token, err := pkgAuth.GeneratePlayerToken(strings.TrimSpace(body.PlayerID), strings.TrimSpace(body.Identity))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "playerId": body.PlayerID})
}

func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.services.Wallet.GetWallet(c.Request.Context(), middleware.PlayerID(c))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, wallet)
}

func (h *Handler) ListStakes(c *gin.Context) {
	tiers, err := h.services.Stakes.ListTiers(c.Request.Context())
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, tiers)
}

func (h *Handler) CreateMatch(c *gin.Context) {
	var body createMatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.services.Match.Create(c.Request.Context(), match.CreateRequest{
		PlayerID: middleware.PlayerID(c),
		Identity: middleware.Identity(c),
		TierID:   body.TierID,
		Wager:    body.Wager,
		Reward:   body.Reward,
		IP:       c.ClientIP(),
	})
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *Handler) JoinMatch(c *gin.Context) {
	var body joinMatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.services.Match.Join(c.Request.Context(), match.JoinRequest{
		PlayerID: middleware.PlayerID(c),
		Identity: middleware.Identity(c),
		RoomCode: body.RoomCode,
		IP:       c.ClientIP(),
	})
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, snap)
}

// GetMatchRecord returns the stored history row, available after the match
// leaves memory.
func (h *Handler) GetMatchRecord(c *gin.Context) {
	record, err := h.services.Recorder.GetForPlayer(c.Request.Context(), c.Param("matchId"), middleware.PlayerID(c))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, record)
}

func (h *Handler) StartMatch(c *gin.Context) {
	result, err := h.services.Match.Start(c.Request.Context(), c.Param("matchId"), middleware.PlayerID(c))
	if err != nil {
		response.Err(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) CancelMatch(c *gin.Context) {
	if err := h.services.Match.Cancel(c.Request.Context(), c.Param("matchId"), middleware.PlayerID(c)); err != nil {
		response.Err(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "match cancelled")
}

func (h *Handler) SubmitAction(c *gin.Context) {
	var env protocol.ActionEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		response.Err(c, appErr.ErrInvalidAction)
		return
	}
	matchID := c.Param("matchId")
	if env.MatchID == "" {
		env.MatchID = matchID
	}
	if env.MatchID != matchID {
		response.Err(c, appErr.ErrInvalidAction)
		return
	}
	h.submit(c, env)
}

func (h *Handler) SyncMatch(c *gin.Context) {
	h.submit(c, protocol.ActionEnvelope{
		Kind:     protocol.ActionRequestSync,
		MatchID:  c.Param("matchId"),
		PlayerID: middleware.PlayerID(c),
	})
}

func (h *Handler) submit(c *gin.Context, env protocol.ActionEnvelope) {
	result, err := h.services.Gateway.Submit(c.Request.Context(), middleware.PlayerID(c), env)
	if err != nil {
		response.Err(c, err)
		return
	}
	if result.Warning != "" {
		response.SuccessWithMsg(c, result, result.Warning)
		return
	}
	response.Success(c, result)
}

func (h *Handler) MatchPresence(c *gin.Context) {
	matchID := c.Param("matchId")
	snap, err := h.services.Game.Snapshot(matchID)
	if err != nil {
		response.Err(c, err)
		return
	}
	if snap.PlayerIndex(middleware.PlayerID(c)) < 0 {
		response.Err(c, appErr.ErrUnauthorized)
		return
	}
	response.Success(c, h.services.Hub.Presence(matchID))
}
