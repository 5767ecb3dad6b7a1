// Package ws provides the WebSocket chat surface.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/hub"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/protocol"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/service"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultReadTimeout  = 60 * time.Second
	helloTimeout        = 30 * time.Second
)

// Server handles WebSocket connections.
type Server struct {
	hub      *hub.Hub
	service  *service.Service
	upgrader websocket.Upgrader

	pingInterval   time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration
	maxMessageSize int64
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, svc *service.Service) *Server {
	s := &Server{
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pingInterval:   orDefault(cfg.WSPingInterval, defaultPingInterval),
		writeTimeout:   orDefault(cfg.WSWriteTimeout, defaultWriteTimeout),
		readTimeout:    orDefault(cfg.WSReadTimeout, defaultReadTimeout),
		maxMessageSize: cfg.WSMaxMessageSize,
	}
	if s.maxMessageSize <= 0 {
		s.maxMessageSize = 65536
	}
	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.maxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeTurn:
		s.handleTurn(conn, data)
	case protocol.TypeConfirm:
		s.handleConfirm(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello opens or resumes the conversation and binds the connection to it.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), helloTimeout)
	defer cancel()

	resp, err := s.service.BeginConversation(ctx, domain.BeginConversationRequest{ConversationID: msg.ConversationID})
	if err != nil {
		log.Printf("Begin conversation failed: %v", err)
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInternalError, "failed to open conversation")
		return
	}

	s.hub.BindConversation(conn, resp.ConversationID)

	ack := protocol.HelloAckMessage{
		BaseMessage:   protocol.NewBase(protocol.TypeHelloAck, resp.ConversationID),
		ReadyForInput: resp.ReadyForInput,
		Message:       resp.Message,
	}
	ack.RequestID = msg.RequestID
	s.hub.SendJSONToConnection(conn, ack)

	log.Printf("Hello handshake completed for conversation: %s", resp.ConversationID)
}

// handleTurn submits a user turn. Progress and the reply reach the client
// through the hub.
func (s *Server) handleTurn(conn *hub.Connection, data []byte) {
	var msg protocol.TurnMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid turn message")
		return
	}

	convID := conn.ConversationID
	if convID == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeConversationRequired, "must send hello first")
		return
	}

	go func() {
		res := s.service.SubmitTurn(context.Background(), convID, domain.SubmitTurnRequest{Text: msg.Text})

		// Turns rejected before starting are not broadcast.
		if res.Status == domain.TurnOutcomeEmpty || res.Status == domain.TurnOutcomeBusy {
			reply := protocol.ReplyMessage{
				BaseMessage: protocol.NewBase(protocol.TypeReply, convID),
				Status:      res.Status,
				Reply:       res.Reply,
			}
			reply.RequestID = msg.RequestID
			s.hub.SendJSONToConnection(conn, reply)
		}
	}()
}

// handleConfirm confirms a draft for the bound conversation.
func (s *Server) handleConfirm(conn *hub.Connection, data []byte) {
	var msg protocol.ConfirmMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid confirm message")
		return
	}

	convID := conn.ConversationID
	if convID == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeConversationRequired, "must send hello first")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), helloTimeout)
		defer cancel()

		res := s.service.ConfirmDraft(ctx, domain.ConfirmDraftRequest{
			ConversationID: convID,
			Service:        msg.Service,
			Description:    msg.Description,
			Price:          msg.Price,
			ClientEmail:    msg.ClientEmail,
			Source:         domain.MissionSourceChat,
		})
		log.Printf("Confirm on conversation %s: accepted=%v reference=%s", convID, res.Accepted, res.Reference)
	}()
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, conn.ConversationID),
		Code:        code,
		Message:     message,
	}
	errMsg.RequestID = requestID
	s.hub.SendJSONToConnection(conn, errMsg)
}
