package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 3 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

type connKey struct {
	eventID string
	userID  string
}

// Conn is one registered client connection.
type Conn struct {
	id      string
	sock    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
	closeCh chan struct{}
}

func (c *Conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeCh)
	_ = c.sock.Close()
}

// Gateway maintains the map from (event, user) to the user's open
// connection and pushes bus events to it.  A reconnect by the same user
// replaces and closes the prior connection.  A user with no connection
// simply misses the push; delivery is best-effort and the status endpoint
// is the fallback.
type Gateway struct {
	mu    sync.RWMutex
	conns map[connKey]*Conn
}

func NewGateway() *Gateway {
	return &Gateway{conns: map[connKey]*Conn{}}
}

// Run subscribes to the bus once and dispatches until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context, bus *Bus) error {
	admissions, err := bus.SubscribeAdmissions(ctx)
	if err != nil {
		return err
	}
	ranks, err := bus.SubscribeRankUpdates(ctx)
	if err != nil {
		return err
	}
	log.Println("[gateway] started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[gateway] stopped")
			return nil
		case ev, ok := <-admissions:
			if !ok {
				return nil
			}
			g.Push(ev.EventID, ev.UserID, ServerMessage{Type: MessageAdmit, AccessKey: ev.Token})
		case ev, ok := <-ranks:
			if !ok {
				return nil
			}
			g.Push(ev.EventID, ev.UserID, ServerMessage{Type: MessageRankUpdate, Rank: ev.Rank})
		}
	}
}

// HandleConn registers the connection and blocks servicing it until the
// peer goes away or a newer connection for the same user replaces it.
func (g *Gateway) HandleConn(eventID, userID string, sock *websocket.Conn) {
	c := g.attach(eventID, userID, sock)
	defer g.detach(eventID, userID, c)

	_ = sock.SetReadDeadline(time.Now().Add(pongTimeout))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	go g.pingLoop(c)

	for {
		if _, _, err := sock.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				log.Printf("[gateway] %s unexpected close: %v", c.id, err)
			}
			return
		}
	}
}

// Push delivers a message to the user's connection if one is open;
// otherwise the message is dropped.
func (g *Gateway) Push(eventID, userID string, msg ServerMessage) {
	g.mu.RLock()
	c := g.conns[connKey{eventID: eventID, userID: userID}]
	g.mu.RUnlock()
	if c == nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.sock.WriteJSON(msg); err != nil {
		log.Printf("[gateway] %s write error: %v", c.id, err)
		c.closed = true
		close(c.closeCh)
		_ = c.sock.Close()
		go g.detach(eventID, userID, c)
	}
}

// Connected reports whether the user currently has an open connection.
func (g *Gateway) Connected(eventID, userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conns[connKey{eventID: eventID, userID: userID}] != nil
}

func (g *Gateway) attach(eventID, userID string, sock *websocket.Conn) *Conn {
	c := &Conn{
		id:      "conn-" + uuid.NewString(),
		sock:    sock,
		closeCh: make(chan struct{}),
	}
	key := connKey{eventID: eventID, userID: userID}

	g.mu.Lock()
	prior := g.conns[key]
	g.conns[key] = c
	total := len(g.conns)
	g.mu.Unlock()

	if prior != nil {
		// Last connection wins.
		prior.close()
		log.Printf("[gateway] %s replaced prior connection for %s/%s", c.id, eventID, userID)
	}
	log.Printf("[gateway] %s attached for %s/%s, total: %d", c.id, eventID, userID, total)
	return c
}

// detach removes the connection only if it is still the registered one, so
// a replaced connection's cleanup cannot evict its successor.
func (g *Gateway) detach(eventID, userID string, c *Conn) {
	key := connKey{eventID: eventID, userID: userID}
	g.mu.Lock()
	if g.conns[key] == c {
		delete(g.conns, key)
	}
	total := len(g.conns)
	g.mu.Unlock()

	c.close()
	log.Printf("[gateway] %s detached, total: %d", c.id, total)
}

func (g *Gateway) pingLoop(c *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if c.closed {
				c.writeMu.Unlock()
				return
			}
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.sock.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
