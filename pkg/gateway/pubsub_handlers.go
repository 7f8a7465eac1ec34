package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	muxerrors "github.com/DeBrosOfficial/triggermux/pkg/errors"
	"github.com/DeBrosOfficial/triggermux/pkg/logging"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For early development we accept any origin; tighten later.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope is the frame sent to WS subscribers for every delivered message.
type wsEnvelope struct {
	Data      string `json:"data"` // base64 of the JSON-encoded message
	Timestamp int64  `json:"timestamp"`
	Trigger   string `json:"trigger"`
}

// subscribeWebsocketHandler upgrades to WS and holds one logical subscription
// for the requested trigger for the lifetime of the connection. Every query
// parameter besides "trigger" is passed to the trigger transform as an
// option. Messages sent by the client are published to the same trigger.
func (g *Gateway) subscribeWebsocketHandler(w http.ResponseWriter, r *http.Request) {
	trigger := r.URL.Query().Get("trigger")
	if trigger == "" {
		g.logger.ComponentWarn(logging.ComponentGateway, "subscribe ws: missing trigger")
		writeError(w, http.StatusBadRequest, "missing 'trigger'")
		return
	}

	options := map[string]interface{}{}
	for key, values := range r.URL.Query() {
		if key == "trigger" || len(values) == 0 {
			continue
		}
		options[key] = values[0]
	}

	connID := uuid.NewString()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "subscribe ws: upgrade failed",
			zap.String("conn_id", connID), zap.Error(err))
		return
	}
	defer conn.Close()

	// Channel delivering fan-out messages to the WS writer loop.
	msgs := make(chan interface{}, 128)
	ctx := r.Context()

	id, err := g.mux.Subscribe(ctx, trigger, func(topic string, message interface{}) error {
		select {
		case msgs <- message:
			return nil
		default:
			// Drop if the client is slow; one stalled socket must not block
			// the fan-out.
			g.logger.ComponentWarn(logging.ComponentGateway, "subscribe ws: client slow, dropping message",
				zap.String("conn_id", connID), zap.String("trigger", trigger))
			return nil
		}
	}, options)
	if err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "subscribe ws: subscribe failed",
			zap.String("conn_id", connID), zap.String("trigger", trigger), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(5*time.Second))
		return
	}
	defer func() { _ = g.mux.Unsubscribe(id) }()

	g.logger.ComponentInfo(logging.ComponentGateway, "subscribe ws: connected",
		zap.String("conn_id", connID),
		zap.String("trigger", trigger),
		zap.Uint64("subscription_id", uint64(id)))

	// Tell the client its subscription id before any messages flow.
	if err := conn.WriteJSON(map[string]any{"subscription_id": id}); err != nil {
		return
	}

	// Writer loop
	done := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case message := <-msgs:
				data, err := json.Marshal(message)
				if err != nil {
					continue
				}
				envelope := wsEnvelope{
					Data:      base64.StdEncoding.EncodeToString(data),
					Timestamp: time.Now().UnixMilli(),
					Trigger:   trigger,
				}
				conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
				if err := conn.WriteJSON(envelope); err != nil {
					return
				}
			case <-ticker.C:
				// Ping keepalive
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
			case <-readerDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// Reader loop: any client message is published to the same trigger.
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var message interface{}
		if err := json.Unmarshal(data, &message); err != nil {
			g.logger.ComponentWarn(logging.ComponentGateway, "subscribe ws: ignoring non-JSON client frame",
				zap.String("conn_id", connID))
			continue
		}
		// Filter out heartbeat frames; they are not application messages.
		if obj, ok := message.(map[string]interface{}); ok {
			if kind, ok := obj["type"].(string); ok && kind == "ping" {
				continue
			}
		}

		if err := g.mux.Publish(ctx, trigger, message, options); err != nil {
			g.logger.ComponentWarn(logging.ComponentGateway, "subscribe ws: publish failed",
				zap.String("conn_id", connID), zap.String("trigger", trigger), zap.Error(err))
		}
	}
	close(readerDone)
	<-done
}

// publishHandler handles POST /v1/publish {trigger, message, options}.
func (g *Gateway) publishHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Trigger string                 `json:"trigger"`
		Message json.RawMessage        `json:"message"`
		Options map[string]interface{} `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Trigger == "" {
		writeError(w, http.StatusBadRequest, "invalid body: expected {trigger,message,options?}")
		return
	}

	var message interface{}
	if len(body.Message) > 0 {
		if err := json.Unmarshal(body.Message, &message); err != nil {
			writeError(w, http.StatusBadRequest, "invalid message: expected JSON")
			return
		}
	}

	if err := g.mux.Publish(r.Context(), body.Trigger, message, body.Options); err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "publish failed",
			zap.String("trigger", body.Trigger), zap.Error(err))
		muxerrors.WriteHTTP(w, err)
		return
	}

	g.logger.ComponentDebug(logging.ComponentGateway, "published",
		zap.String("trigger", body.Trigger))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
