package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	subjectPrefix = "ludo.match."
	subjectSuffix = ".events"
	originHeader  = "Ludo-Origin"
)

type RelayConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSRelay shares frames between nodes that each hold a Hub. A frame
// committed on one node is delivered to subscribers connected to any node.
type NATSRelay struct {
	nc     *nats.Conn
	hub    *Hub
	origin string
	sub    *nats.Subscription
}

func ConnectRelay(cfg RelayConfig, hub *Hub) (*NATSRelay, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("ludo-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSRelay(nc, hub), nil
}

func NewNATSRelay(nc *nats.Conn, hub *Hub) *NATSRelay {
	return &NATSRelay{nc: nc, hub: hub, origin: uuid.NewString()}
}

// Start subscribes to every match subject and wires the relay into the hub.
func (r *NATSRelay) Start() error {
	sub, err := r.nc.Subscribe(subjectPrefix+"*"+subjectSuffix, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe match events: %w", err)
	}
	r.sub = sub
	r.hub.SetForwarder(r)
	return nil
}

func (r *NATSRelay) Forward(frame protocol.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Log.Error("encode frame for relay", zap.String("matchID", frame.MatchID), zap.Error(err))
		return
	}
	msg := nats.NewMsg(SubjectFor(frame.MatchID))
	msg.Header.Set(originHeader, r.origin)
	msg.Data = data
	if err := r.nc.PublishMsg(msg); err != nil {
		logger.Log.Warn("relay publish failed",
			zap.String("matchID", frame.MatchID),
			zap.Int64("version", frame.Version),
			zap.Error(err),
		)
	}
}

func (r *NATSRelay) handle(msg *nats.Msg) {
	if msg.Header.Get(originHeader) == r.origin {
		return
	}
	matchID, ok := MatchFromSubject(msg.Subject)
	if !ok {
		return
	}
	var frame protocol.Frame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		logger.Log.Warn("discarding undecodable relay frame", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if frame.MatchID != matchID {
		return
	}
	r.hub.Deliver(frame)
}

func (r *NATSRelay) Close() error {
	r.hub.SetForwarder(nil)
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			return err
		}
	}
	return r.nc.Drain()
}

func SubjectFor(matchID string) string {
	return subjectPrefix + matchID + subjectSuffix
}

func MatchFromSubject(subject string) (string, bool) {
	if !strings.HasPrefix(subject, subjectPrefix) || !strings.HasSuffix(subject, subjectSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(subject, subjectPrefix), subjectSuffix)
	if id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}
