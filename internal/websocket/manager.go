package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Manager fans change notifications out to the connected terminals of a
// store. Connections are indexed by store so a broadcast never crosses the
// tenant boundary.
type Manager struct {
	clients         map[string]*Client
	storeIndex      map[string]map[string]bool
	clientsMutex    sync.RWMutex
	Register        chan *Client
	Unregister      chan *Client
	maxConnPerStore int
	writeWait       time.Duration
	pongWait        time.Duration
	pingPeriod      time.Duration
}

func NewManager(maxConnPerStore int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:         make(map[string]*Client),
		storeIndex:      make(map[string]map[string]bool),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		maxConnPerStore: maxConnPerStore,
		writeWait:       writeWait,
		pongWait:        pongWait,
		pingPeriod:      pingPeriod,
	}
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.storeIndex[client.StoreID] == nil {
		m.storeIndex[client.StoreID] = make(map[string]bool)
	}

	if len(m.storeIndex[client.StoreID]) >= m.maxConnPerStore {
		log.Printf("max connections reached for store %s", client.StoreID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.storeIndex[client.StoreID][client.ID] = true

	log.Printf("client registered: %s (store: %s, terminal: %s)", client.ID, client.StoreID, client.TerminalID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.storeIndex[client.StoreID], client.ID)

		if len(m.storeIndex[client.StoreID]) == 0 {
			delete(m.storeIndex, client.StoreID)
		}

		close(client.Send)
		log.Printf("client unregistered: %s", client.ID)
	}
}

// BroadcastToStore delivers a message to every terminal of the store except
// the one that produced the change.
func (m *Manager) BroadcastToStore(storeID string, message *Message, excludeTerminalID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	// Unregister takes the write lock, so stalled clients are handed off
	// only after the read lock is released.
	var stalled []*Client

	m.clientsMutex.RLock()
	clientIDs, exists := m.storeIndex[storeID]
	if !exists {
		m.clientsMutex.RUnlock()
		return nil
	}

	for clientID := range clientIDs {
		client := m.clients[clientID]
		if client.TerminalID != excludeTerminalID {
			select {
			case client.Send <- messageBytes:
			default:
				stalled = append(stalled, client)
			}
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range stalled {
		log.Printf("client %s send buffer full, closing connection", client.ID)
		m.Unregister <- client
	}

	return nil
}

func (m *Manager) StoreConnections(storeID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.storeIndex[storeID]; exists {
		return len(clients)
	}
	return 0
}
