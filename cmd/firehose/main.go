// The firehose command tails the room event stream published by the chat
// server over NATS. It subscribes to every room (or a single room via
// ROOM_ID) and logs each event as it arrives. Useful for watching live
// activity without attaching a WebSocket client.
package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/studychat/chat-server/internal/messaging"
)

func main() {
	log.Println("Starting Study Chat firehose tail...")

	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "studychat-firehose"

	client, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer client.Close()

	logEvent := func(roomID string, data []byte) {
		var event struct {
			Type     string `json:"type"`
			Username string `json:"username"`
			Message  string `json:"message"`
		}
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("[firehose] room=%s unparseable event: %v", roomID, err)
			return
		}
		switch event.Type {
		case "new_message":
			log.Printf("[firehose] room=%s %s: %s", roomID, event.Username, event.Message)
		default:
			log.Printf("[firehose] room=%s %s user=%s", roomID, event.Type, event.Username)
		}
	}

	if roomID := os.Getenv("ROOM_ID"); roomID != "" {
		err = client.SubscribeRoomEvents(roomID, func(data []byte) {
			logEvent(roomID, data)
		})
		if err != nil {
			log.Fatalf("failed to subscribe to room %s: %v", roomID, err)
		}
		log.Printf("[firehose] tailing room %s", roomID)
	} else {
		if err := client.SubscribeAllRoomEvents(logEvent); err != nil {
			log.Fatalf("failed to subscribe to room events: %v", err)
		}
		log.Println("[firehose] tailing all rooms")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)
}
