package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ludo-service/internal/middleware"
	"ludo-service/internal/service/game"
	"ludo-service/internal/service/gateway"
	"ludo-service/internal/service/transport"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"
	"ludo-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit  = 1 << 16
	pongWait   = 60 * time.Second
	pingEvery  = 25 * time.Second
	writeWait  = 5 * time.Second
	replyQueue = 16
)

type Handler struct {
	gameSvc *game.Service
	hub     *transport.Hub
	gateway *gateway.Gateway
}

func NewHandler(gameSvc *game.Service, hub *transport.Hub, gw *gateway.Gateway) *Handler {
	return &Handler{gameSvc: gameSvc, hub: hub, gateway: gw}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleMatchWS streams frames and presence for one match to a participant
// and accepts action envelopes on the same socket. Runs behind
// middleware.AuthRequired.
func (h *Handler) HandleMatchWS(c *gin.Context) {
	matchID := c.Param("matchId")
	playerID := middleware.PlayerID(c)

	snap, err := h.gameSvc.Snapshot(matchID)
	if err != nil {
		response.Err(c, err)
		return
	}
	if snap.PlayerIndex(playerID) < 0 {
		response.Err(c, appErr.ErrUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.String("matchID", matchID),
		zap.String("playerID", playerID),
	)

	cl := newClient(conn, playerID, matchID, h)
	cl.run()
}

type client struct {
	conn     *websocket.Conn
	playerID string
	matchID  string
	h        *Handler
	sub      *transport.Subscription
	replies  chan protocol.Message
	done     chan struct{}
	stopped  chan struct{}
}

func newClient(conn *websocket.Conn, playerID, matchID string, h *Handler) *client {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &client{
		conn:     conn,
		playerID: playerID,
		matchID:  matchID,
		h:        h,
		sub:      h.hub.Subscribe(matchID, playerID),
		replies:  make(chan protocol.Message, replyQueue),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (c *client) run() {
	go c.writePump()
	c.greet()
	c.readPump()
}

// greet sends the current snapshot so the client can seed its replica
// without a separate request.
func (c *client) greet() {
	snap, err := c.h.gameSvc.Snapshot(c.matchID)
	if err != nil {
		return
	}
	c.reply(protocol.Message{
		Type: protocol.MessageResult,
		Result: &protocol.ActionResult{
			Kind:       protocol.ActionRequestSync,
			MatchID:    c.matchID,
			Version:    snap.Version,
			Snapshot:   &snap,
			ServerTime: time.Now().UnixMilli(),
		},
	})
}

func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.sub.Close()
		c.conn.Close()
	}()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.String("playerID", c.playerID), zap.String("matchID", c.matchID))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != protocol.MessageAction || msg.Action == nil {
			c.replyError("", appErr.ErrInvalidAction)
			continue
		}
		env := *msg.Action
		if env.MatchID == "" {
			env.MatchID = c.matchID
		}
		if env.MatchID != c.matchID {
			c.replyError(env.ClientActionID, appErr.ErrUnauthorized)
			continue
		}

		result, err := c.h.gateway.Submit(context.Background(), c.playerID, env)
		if err != nil {
			c.replyError(env.ClientActionID, err)
			continue
		}
		c.reply(protocol.Message{Type: protocol.MessageResult, ClientActionID: env.ClientActionID, Result: result})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		close(c.stopped)
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C:
			if !ok {
				return
			}
			if !c.write(msg) {
				return
			}
		case msg := <-c.replies:
			if !c.write(msg) {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) write(msg protocol.Message) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.String("playerID", c.playerID), zap.String("matchID", c.matchID))
		return false
	}
	return true
}

func (c *client) reply(msg protocol.Message) {
	select {
	case c.replies <- msg:
	case <-c.stopped:
	}
}

func (c *client) replyError(clientActionID string, err error) {
	body := protocol.NewErrorBody(err)
	c.reply(protocol.Message{Type: protocol.MessageError, ClientActionID: clientActionID, Error: &body})
}
