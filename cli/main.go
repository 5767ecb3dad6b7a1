// Package main provides a terminal chat client for the FreelanceFlow WebSocket server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/protocol"
)

// Client represents a WebSocket client.
type Client struct {
	conn           *websocket.Conn
	conversationID string
	done           chan struct{}

	mu        sync.Mutex
	lastDraft *domain.Draft
	writeMu   sync.Mutex
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

func (c *Client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// SendHello opens or resumes a conversation and waits for hello_ack.
func (c *Client) SendHello(conversationID string) (*protocol.HelloAckMessage, error) {
	msg := protocol.HelloMessage{BaseMessage: protocol.NewBase(protocol.TypeHello, conversationID)}
	if err := c.write(msg); err != nil {
		return nil, fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return nil, fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if base.Type != protocol.TypeHelloAck {
		return nil, fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	var ack protocol.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	c.conversationID = ack.ConversationID
	return &ack, nil
}

// SendTurn sends one user message.
func (c *Client) SendTurn(text string) error {
	msg := protocol.TurnMessage{
		BaseMessage: protocol.NewBase(protocol.TypeTurn, c.conversationID),
		Text:        text,
	}
	msg.RequestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	return c.write(msg)
}

// SendConfirm confirms the last proposed draft for clientEmail.
func (c *Client) SendConfirm(clientEmail string) error {
	c.mu.Lock()
	draft := c.lastDraft
	c.mu.Unlock()
	if draft == nil {
		return fmt.Errorf("no mission proposed yet")
	}

	msg := protocol.ConfirmMessage{
		BaseMessage: protocol.NewBase(protocol.TypeConfirm, c.conversationID),
		Service:     draft.Service,
		Description: draft.Description,
		Price:       draft.Price,
		ClientEmail: clientEmail,
	}
	return c.write(msg)
}

// ReadMessages reads and prints messages from the server.
func (c *Client) ReadMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			c.print(data)
		}
	}
}

func (c *Client) print(data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.Printf("Unmarshal error: %v", err)
		return
	}

	switch base.Type {
	case protocol.TypeRunStarted:
		fmt.Println("\n… l'assistant réfléchit")
	case protocol.TypeRunStatus:
		var msg protocol.RunStatusMessage
		json.Unmarshal(data, &msg)
		fmt.Printf("  [%d] %s\n", msg.Attempt, msg.Status)
	case protocol.TypeReply:
		var msg protocol.ReplyMessage
		json.Unmarshal(data, &msg)
		fmt.Printf("\nAssistant: %s\n", msg.Reply)
		if msg.Draft != nil {
			c.mu.Lock()
			c.lastDraft = msg.Draft
			c.mu.Unlock()
			fmt.Printf("\nMission proposée: %s (%.2f €)\nTapez /confirm <email> pour la valider.\n", msg.Draft.Service, msg.Draft.Price)
		}
	case protocol.TypeConfirmed:
		var msg protocol.ConfirmedMessage
		json.Unmarshal(data, &msg)
		fmt.Printf("\n%s\n", msg.Message)
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		json.Unmarshal(data, &msg)
		fmt.Printf("\nErreur [%s]: %s\n", msg.Code, msg.Message)
	default:
		var prettyJSON map[string]interface{}
		json.Unmarshal(data, &prettyJSON)
		formatted, _ := json.MarshalIndent(prettyJSON, "", "  ")
		fmt.Printf("\n[%s] Received:\n%s\n", base.Type, string(formatted))
	}
	fmt.Print("> ")
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket server address")
	conversationID := flag.String("conversation", "", "Conversation ID to resume")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	ack, err := client.SendHello(*conversationID)
	if err != nil {
		log.Fatalf("Hello failed: %v", err)
	}
	if !ack.ReadyForInput {
		log.Fatalf("Conversation unavailable: %s", ack.Message)
	}

	fmt.Printf("Conversation: %s\n", client.conversationID)
	fmt.Println(ack.Message)
	fmt.Println("Commands: /confirm <email>, /quit")

	go client.ReadMessages()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			switch {
			case input == "":
				continue
			case input == "/quit":
				fmt.Println("Au revoir !")
				return
			case strings.HasPrefix(input, "/confirm"):
				email := strings.TrimSpace(strings.TrimPrefix(input, "/confirm"))
				if err := client.SendConfirm(email); err != nil {
					log.Printf("Confirm error: %v", err)
				}
			default:
				if err := client.SendTurn(input); err != nil {
					log.Printf("Send error: %v", err)
				}
			}
		}
	}
}
