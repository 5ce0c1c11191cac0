package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when attaching to a hub whose Run loop has exited.
var ErrClosed = errors.New("hub: closed")

const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages to them.
// The client set is owned by the Run goroutine.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count   atomic.Int32
	running atomic.Bool
}

// New creates a hub. Call Run to start it.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client.
func (h *Hub) Run(ctx context.Context) error {
	h.running.Store(true)
	defer func() {
		for c := range h.clients {
			h.remove(c)
		}
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.logger.Debug("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Debug("client disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
}

// Broadcast queues msg for every client. It never blocks; it reports false
// if the queue is full and the message was dropped.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Warn("broadcast queue full, dropping message")
		return false
	}
}

// Publish encodes an event and broadcasts it.
func (h *Hub) Publish(typ EventType, data any) error {
	msg, err := encode(typ, data, time.Now())
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
