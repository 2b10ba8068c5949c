// Package broadcast repassa os eventos de apostas publicados no Redis para clientes
// WebSocket inscritos no round.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientMsg é a mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	RoundID string `json:"roundId"` // requerido em subscribe/unsubscribe
}

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// client tem um único escritor (writeLoop); Broadcast só enfileira
type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub gerencia conexões e assinaturas por round
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	// roundID -> set of clients
	subs map[string]map[*client]struct{}
}

// NewHub cria o hub com política de origem customizada
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão
// Cada cliente pode se inscrever em vários rounds
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	go h.writeLoop(c)
	defer func() {
		h.drop(c)
		c.close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.RoundID != "" {
				h.subscribe(c, msg.RoundID)
			}
		case "unsubscribe":
			h.unsubscribe(c, msg.RoundID)
		case "ping":
			h.enqueue(c, []byte(`{"type":"pong"}`))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) subscribe(c *client, roundID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[roundID]; !ok {
		h.subs[roundID] = make(map[*client]struct{})
	}
	h.subs[roundID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, roundID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[roundID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, roundID)
		}
	}
}

// drop remove o cliente de todas as assinaturas
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// enqueue não bloqueia: cliente lento demais é desconectado
func (h *Hub) enqueue(c *client, b []byte) {
	defer func() {
		// envio após close do canal (cliente já saiu)
		_ = recover()
	}()
	select {
	case c.send <- b:
	default:
		h.log.Warn("ws client too slow, dropping")
		h.drop(c)
		c.close()
	}
}

// Subscribers devolve quantos clientes acompanham o round
func (h *Hub) Subscribers(roundID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[roundID])
}

// Broadcast envia a mensagem a todos os inscritos no round
func (h *Hub) Broadcast(roundID string, msg []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[roundID]))
	for c := range h.subs[roundID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, msg)
	}
}

// Dispatch roteia um envelope de evento (JSON) pelo round_id
func (h *Hub) Dispatch(payload []byte) error {
	var head struct {
		RoundID string `json:"round_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return err
	}
	if head.RoundID == "" {
		return nil
	}
	h.Broadcast(head.RoundID, payload)
	return nil
}
