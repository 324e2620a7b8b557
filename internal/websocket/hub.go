package websocket

import "github.com/rs/zerolog/log"

type envelope struct {
	topic   string
	message []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients, grouped by the topic they subscribed to.
	subscriptions map[string]map[*Client]bool

	broadcast chan envelope

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:     make(chan envelope, 64),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		subscriptions: make(map[string]map[*Client]bool),
		done:          make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. All client bookkeeping
// happens on this goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for _, subs := range h.subscriptions {
				for client := range subs {
					close(client.Send)
				}
			}
			h.subscriptions = make(map[string]map[*Client]bool)
			return
		case client := <-h.Register:
			h.addSubscription(client)
			log.Info().Str("topic", client.Topic).Int("total_clients", h.count()).Msg("Client connected")
		case client := <-h.Unregister:
			if subs, ok := h.subscriptions[client.Topic]; ok && subs[client] {
				h.removeSubscription(client)
				close(client.Send)
				log.Info().Int("total_clients", h.count()).Msg("Client disconnected")
			}
		case env := <-h.broadcast:
			h.deliver(env.topic, env.message)
			if env.topic != TopicGlobal {
				h.deliver(TopicGlobal, env.message)
			}
		}
	}
}

// Join registers a client unless the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters a client. It is a no-op once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Stop ends the Run loop and closes every client.
func (h *Hub) Stop() {
	close(h.done)
}

// Publish queues a message for every client subscribed to topic (and the
// global topic). It never blocks the caller; when the queue is full the
// message is dropped.
func (h *Hub) Publish(topic, action string, payload interface{}) {
	b := encode(Message{Action: action, Payload: payload})
	if b == nil {
		return
	}
	select {
	case h.broadcast <- envelope{topic: topic, message: b}:
	default:
		log.Warn().Str("topic", topic).Str("action", action).Msg("Websocket broadcast queue full, dropping message")
	}
}

func (h *Hub) deliver(topic string, message []byte) {
	for client := range h.subscriptions[topic] {
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			h.removeSubscription(client)
		}
	}
}

func (h *Hub) addSubscription(client *Client) {
	if h.subscriptions[client.Topic] == nil {
		h.subscriptions[client.Topic] = make(map[*Client]bool)
	}
	h.subscriptions[client.Topic][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	if subs, ok := h.subscriptions[client.Topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, client.Topic)
		}
	}
}

func (h *Hub) count() int {
	n := 0
	for _, subs := range h.subscriptions {
		n += len(subs)
	}
	return n
}
