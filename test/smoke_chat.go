package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Manual smoke test against a running server: creates a character, watches
// the WebSocket for snapshots, and sends one message.

const (
	baseURL = "http://localhost:8080"
	wsURL   = "ws://localhost:8080/ws"
)

func main() {
	fmt.Println("🚀 Starting chat smoke test...")

	if err := createCharacter("Pickle Bob", "You are Pickle Bob, a funny pickle with a big mustache and bad sense of humor."); err != nil {
		log.Fatalf("Failed to create character: %v", err)
	}
	fmt.Println("✅ Character created")

	done := make(chan struct{})
	go watchSnapshots(done)

	reply, err := sendMessage("Pickle Bob", "hello there")
	if err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}
	fmt.Printf("💬 Final reply: %s\n", reply)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	fmt.Println("✅ Chat smoke test completed successfully!")
}

func createCharacter(name, systemPrompt string) error {
	body, _ := json.Marshal(map[string]string{
		"name":          name,
		"system_prompt": systemPrompt,
	})

	resp, err := http.Post(baseURL+"/api/v1/characters", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create failed with status %d: %s", resp.StatusCode, string(payload))
	}
	return nil
}

func sendMessage(character, message string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"character": character,
		"message":   message,
	})

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(baseURL+"/api/v1/chat/send", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("send failed with status %d: %s", resp.StatusCode, string(payload))
	}

	var result struct {
		Reply struct {
			Content json.RawMessage `json:"content"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", err
	}
	return string(result.Reply.Content), nil
}

func watchSnapshots(done chan struct{}) {
	defer close(done)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Printf("⚠️  WebSocket unavailable: %v\n", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope struct {
			Type string `json:"type"`
			Data struct {
				Final bool `json:"final"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			continue
		}
		fmt.Printf("📤 %s event (final=%v)\n", envelope.Type, envelope.Data.Final)
		if envelope.Type == "snapshot" && envelope.Data.Final {
			return
		}
	}
}
