package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// adminCall hits a loopback admin endpoint and returns the body. Non-2xx
// statuses are errors carrying the body text.
func adminCall(method, baseURL, path string, timeout time.Duration) ([]byte, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return b, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(b)))
	}
	return b, nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	brief := fs.Bool("brief", false, "print one summary line instead of the full json")
	_ = fs.Parse(args)

	b, err := adminCall(http.MethodGet, *baseURL, "/admin/v1/state", 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !*brief {
		fmt.Println(strings.TrimSpace(string(b)))
		return
	}
	line, err := briefState(b)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(line)
}

// briefState condenses a world metrics document into one line.
func briefState(b []byte) (string, error) {
	var m struct {
		WorldID string `json:"world_id"`
		RunID   string `json:"run_id"`
		Seed    int64  `json:"seed"`
		PlayerX int    `json:"player_x"`
		PlayerY int    `json:"player_y"`
		Stream  struct {
			Loaded      int    `json:"loaded"`
			Loading     int    `json:"loading"`
			Unloaded    int    `json:"unloaded"`
			FailedTotal uint64 `json:"failed_total"`
			EditsTotal  uint64 `json:"edits_total"`
			QueueDepth  int    `json:"queue_depth"`
		} `json:"stream"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	if m.WorldID == "" {
		return "", fmt.Errorf("decode state: missing world_id")
	}
	st := m.Stream
	return fmt.Sprintf("world=%s run=%s seed=%d player=%d,%d loaded=%d loading=%d unloaded=%d failed=%d edits=%d queue=%d",
		m.WorldID, m.RunID, m.Seed, m.PlayerX, m.PlayerY,
		st.Loaded, st.Loading, st.Unloaded, st.FailedTotal, st.EditsTotal, st.QueueDepth), nil
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	b, err := adminCall(http.MethodPost, *baseURL, "/admin/v1/snapshot", 10*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(strings.TrimSpace(string(b)))
}
