package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/steam-achievements/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:     "test-client",
		hub:    hub,
		send:   make(chan []byte, 8),
		logger: testLogger(),
	}
}

func receiveMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, appID string, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.GetSubscriberCount(appID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count for %s = %d, want %d", appID, hub.GetSubscriberCount(appID), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubscribeNormalizesAppID(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	c := newTestClient(hub)
	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, AppID: "0440"})

	// The zero-padded form joins the canonical feed
	waitForSubscribers(t, hub, "440", 1)

	ack := receiveMessage(t, c)
	if ack.Type != "subscribed" {
		t.Errorf("ack type = %q", ack.Type)
	}
	if ack.AppID != "440" {
		t.Errorf("ack app id = %q, want canonical 440", ack.AppID)
	}
}

func TestSubscribeRejectsInvalidAppID(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	for _, raw := range []string{"", "dota", "0", "-1", "4294967296"} {
		c := newTestClient(hub)
		c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, AppID: raw})

		msg := receiveMessage(t, c)
		if msg.Type != MessageTypeError {
			t.Errorf("app_id %q: message type = %q, want error", raw, msg.Type)
		}
		if hub.GetSubscriberCount(raw) != 0 {
			t.Errorf("app_id %q: invalid subscription reached the hub", raw)
		}
	}
}

func TestUnsubscribeLeavesFeed(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	c := newTestClient(hub)
	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, AppID: "440"})
	waitForSubscribers(t, hub, "440", 1)
	receiveMessage(t, c) // subscribe ack

	c.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe, AppID: "440"})
	waitForSubscribers(t, hub, "440", 0)

	if ack := receiveMessage(t, c); ack.Type != "unsubscribed" {
		t.Errorf("ack type = %q", ack.Type)
	}
}

func TestBroadcastMintEventReachesSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	c := newTestClient(hub)
	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, AppID: "440"})
	waitForSubscribers(t, hub, "440", 1)
	receiveMessage(t, c) // subscribe ack

	hub.BroadcastMintEvent(domain.MintEvent{
		OwnerAddress:  "0xaa",
		TokenID:       "0x01",
		AppID:         440,
		AchievementID: "TF_PLAY_GAME",
	})

	msg := receiveMessage(t, c)
	if msg.Type != MessageTypeMintEvent {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeMintEvent)
	}
	if msg.AppID != "440" {
		t.Errorf("message app id = %q", msg.AppID)
	}
}
