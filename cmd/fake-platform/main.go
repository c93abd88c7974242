// ABOUTME: Minimal fake scam platform that drives the webhook with scripted scammer lines
// ABOUTME: Usage: fake-platform [-addr localhost:8080] [-key KEY] [-session ID] [-delay 2s] [-script FILE]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
)

// script is a typical false-urgency bank scam opening, with the payment
// details a real scammer eventually leaks.
var script = []string{
	"Hello sir, I am calling from your bank. Your account will be blocked today due to KYC non-compliance.",
	"Sir this is very urgent, your SBI account ending 4521 will be frozen. You must verify immediately.",
	"Please verify at http://sbi-kyc-update.xyz/verify or your funds will be locked.",
	"Sir if the link is not working, you can pay the verification fee of Rs 10 to refund-desk@okaxis.",
	"Ok sir, alternately call our verification officer at +91 98203 45671. Do it before 5 PM.",
	"Sir are you there? This is your last chance. After this the account is blocked permanently.",
	"Fine. I am closing your file now. Goodbye.",
}

type turnRequest struct {
	SessionID string            `json:"sessionId"`
	Message   map[string]string `json:"message"`
	Metadata  map[string]string `json:"metadata"`
}

type turnResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Status    string `json:"status"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "gateway address")
	key := flag.String("key", "", "gateway api key")
	sessionID := flag.String("session", "", "session id (random when empty)")
	delay := flag.Duration("delay", 2*time.Second, "pause between messages")
	channel := flag.String("channel", "sms", "reported channel")
	scriptPath := flag.String("script", "", "file with one scammer line per row (built-in script when empty)")
	flag.Parse()

	if *sessionID == "" {
		*sessionID = "fake-" + uuid.NewString()[:8]
	}
	if *scriptPath != "" {
		lines, err := loadScript(*scriptPath)
		if err != nil {
			log.Fatal(err)
		}
		script = lines
	}

	if err := run(*addr, *key, *sessionID, *channel, *delay); err != nil {
		log.Fatal(err)
	}
}

func loadScript(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("script %s has no lines", path)
	}
	return lines, nil
}

func run(addr, key, sessionID, channel string, delay time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	url := fmt.Sprintf("http://%s/api/v1/messages", addr)
	fmt.Fprintf(os.Stderr, "driving session %s against %s\n\n", sessionID, url)

	for i, line := range script {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Printf("scammer> %s\n", line)
		resp, err := sendTurn(ctx, url, key, turnRequest{
			SessionID: sessionID,
			Message: map[string]string{
				"sender":    "scammer",
				"text":      line,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
			Metadata: map[string]string{"channel": channel, "language": "en"},
		})
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}

		fmt.Printf("decoy  > %s\n\n", resp.Reply)
		if resp.Status != "ACTIVE" {
			fmt.Fprintf(os.Stderr, "session finished with status %s after %d turns\n", resp.Status, i+1)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}

	fmt.Fprintln(os.Stderr, "script exhausted, session still ACTIVE")
	return nil
}

func sendTurn(ctx context.Context, url, key string, turn turnRequest) (*turnResponse, error) {
	body, err := json.Marshal(turn)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("x-api-key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, errBody["error"])
	}

	var out turnResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}
