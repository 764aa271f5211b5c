package ws

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if !hub.clients[client] {
		t.Fatal("client not registered")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.clients[client] {
		t.Fatal("client still registered after unregister")
	}

	// send channel must be closed so WritePump exits
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected closed send channel")
		}
	default:
		t.Fatal("send channel not closed")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client1 := mockClient(hub)
	client2 := mockClient(hub)
	client3 := mockClient(hub)

	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("order.created", map[string]string{"order_number": "RSA-001"})

	for i, client := range []*Client{client1, client2, client3} {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "order.created" {
				t.Errorf("client%d: expected type 'order.created', got '%s'", i+1, received.Type)
			}
			var payload map[string]string
			if err := json.Unmarshal(received.Payload, &payload); err != nil {
				t.Fatalf("client%d: failed to unmarshal payload: %v", i+1, err)
			}
			if payload["order_number"] != "RSA-001" {
				t.Errorf("client%d: expected order_number RSA-001, got '%s'", i+1, payload["order_number"])
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	// A client whose send buffer is already full never blocks the hub;
	// it gets disconnected instead.
	slow := &Client{hub: hub, send: make(chan []byte)}
	fast := mockClient(hub)

	hub.register <- slow
	hub.register <- fast
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("inventory.updated", map[string]string{"name": "flour"})

	select {
	case <-fast.send:
		// fast client still served
	case <-time.After(100 * time.Millisecond):
		t.Fatal("fast client did not receive message")
	}

	time.Sleep(10 * time.Millisecond)
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.clients[slow] {
		t.Fatal("slow client should have been dropped")
	}
}

func TestEventSerialization(t *testing.T) {
	testCases := []struct {
		name  string
		event Event
	}{
		{
			name: "order created event",
			event: Event{
				Type:    "order.created",
				Payload: json.RawMessage(`{"order_number":"RSA-001","total_price":"30.00"}`),
			},
		},
		{
			name: "order status changed event",
			event: Event{
				Type:    "order.status_changed",
				Payload: json.RawMessage(`{"id":"abc","status":"completed"}`),
			},
		},
		{
			name: "inventory updated event",
			event: Event{
				Type:    "inventory.updated",
				Payload: json.RawMessage(`{"name":"flour","current_quantity":"15"}`),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.event)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}

			var decoded Event
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}

			if decoded.Type != tc.event.Type {
				t.Errorf("Type mismatch: got %s, want %s", decoded.Type, tc.event.Type)
			}
			if string(decoded.Payload) != string(tc.event.Payload) {
				t.Errorf("Payload mismatch: got %s, want %s", decoded.Payload, tc.event.Payload)
			}
		})
	}
}
