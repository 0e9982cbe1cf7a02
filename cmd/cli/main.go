package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hamed0406/livemonitor/internal/domain"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cli add | cli watch")
	fmt.Fprintln(os.Stderr, "env: API_BASE (default http://localhost:8080), API_KEY")
	os.Exit(2)
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	api = strings.TrimRight(api, "/")

	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "add":
		add(api, os.Getenv("API_KEY"))
	case "watch":
		if err := watch(api); err != nil {
			fmt.Fprintln(os.Stderr, "watch:", err)
			os.Exit(1)
		}
	default:
		usage()
	}
}

func add(api, key string) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a site URL to monitor (e.g., https://example.com): ")
	raw, _ := reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		return
	}

	fmt.Print("Check interval in seconds [30]: ")
	ivRaw, _ := reader.ReadString('\n')
	seconds := 30
	if s := strings.TrimSpace(ivRaw); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			fmt.Println("Invalid interval.")
			return
		}
		seconds = n
	}

	body, _ := json.Marshal(map[string]any{
		"uri":             raw,
		"monitorInterval": int64(seconds) * 1000,
		"thresholds":      []map[string]int64{{"lowerLimit": 0, "upperLimit": 1000}},
	})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/services", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var svc domain.Service
		_ = json.NewDecoder(resp.Body).Decode(&svc)
		fmt.Printf("Added %s (id %s). Run `cli watch` for live results.\n", svc.URI, svc.ID)
	} else {
		fmt.Println("API returned status:", resp.Status)
	}
}

func watch(api string) error {
	u, err := url.Parse(api)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, _, err := websocket.Dial(dialCtx, u.String(), nil)
	cancel()
	if err != nil {
		return err
	}
	defer c.CloseNow()
	fmt.Println("Connected to", u.String())

	for {
		var res domain.ProbeResult
		if err := wsjson.Read(ctx, c, &res); err != nil {
			if ctx.Err() != nil {
				c.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return err
		}
		ts := time.Now().Format("15:04:05")
		if res.Up() {
			fmt.Printf("%s  %s  UP    %.2f ms\n", ts, res.ID, res.LatencyMS)
		} else {
			fmt.Printf("%s  %s  DOWN\n", ts, res.ID)
		}
	}
}
