// Command ws_listen connects to the mpdtouch status websocket and prints
// every message it receives. It is a debugging aid.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8090/ws", "mpdtouch status websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames instead of a summary")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// The server pings every 20s; answer with pongs and keep the deadline fresh.
	var writeMu sync.Mutex
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			switch messageType {
			case websocket.TextMessage:
				if *raw {
					fmt.Println(string(message))
					continue
				}
				fmt.Println(formatMessage(message))
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// formatMessage renders one status frame as a single line.
func formatMessage(message []byte) string {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		return "[TEXT] " + string(message)
	}

	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000") + " "
	}

	var data map[string]any
	_ = json.Unmarshal(env.Data, &data)

	switch env.Type {
	case "state_init":
		return fmt.Sprintf("%s[STATE] %v %s volume=%v random=%v", ts, data["state"], songLabel(data), data["volume"], data["random"])
	case "song_changed":
		return fmt.Sprintf("%s[SONG] %s (pos %v)", ts, songLabel(data), data["pos"])
	case "playback_state_changed":
		return fmt.Sprintf("%s[PLAYBACK] %v", ts, data["state"])
	case "random_changed":
		return fmt.Sprintf("%s[RANDOM] %v", ts, data["random"])
	case "playlist_changed":
		return fmt.Sprintf("%s[PLAYLIST] version %v, %v entries", ts, data["version"], data["length"])
	case "navigation":
		return fmt.Sprintf("%s[NAV] %v cursor=%v", ts, data["event"], data["cursor"])
	default:
		return fmt.Sprintf("%s[%s] %s", ts, env.Type, string(env.Data))
	}
}

func songLabel(data map[string]any) string {
	title, _ := data["title"].(string)
	artist, _ := data["artist"].(string)
	uri, _ := data["uri"].(string)
	switch {
	case artist != "" && title != "":
		return artist + " - " + title
	case title != "":
		return title
	case uri != "":
		return uri
	default:
		return "-"
	}
}
