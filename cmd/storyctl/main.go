package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type storyResponse struct {
	SessionID      string            `json:"session_id"`
	Beats          []json.RawMessage `json:"beats"`
	Revision       int64             `json:"revision"`
	StaleArtifacts bool              `json:"stale_artifacts"`
}

type beat struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

type client struct {
	baseURL string
	http    *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "Base URL of the story server")
	prompt := flag.String("prompt", "", "Start a new session from this premise")
	scenes := flag.Int("scenes", 0, "Number of scenes for -prompt (server default when 0)")
	sessionID := flag.String("session", "", "Existing session id")
	branch := flag.String("branch", "", "Branch as step:choice, e.g. 1:0")
	render := flag.Bool("render", false, "Render one image per beat")
	pdf := flag.Bool("pdf", false, "Export the storybook document")
	video := flag.Bool("video", false, "Export the narrated video")
	timeout := flag.Duration("timeout", 10*time.Minute, "Per-request timeout")
	flag.Parse()

	if *prompt == "" && *sessionID == "" {
		fmt.Println("Story Tools Usage:")
		fmt.Println("  -prompt TEXT        Start a new session")
		fmt.Println("  -session ID         Work on an existing session")
		fmt.Println("  -branch STEP:CHOICE Regenerate the tail after a choice")
		fmt.Println("  -render             Render images")
		fmt.Println("  -pdf / -video       Export the session")
		os.Exit(0)
	}

	c := &client{baseURL: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: *timeout}}

	id := *sessionID
	if *prompt != "" {
		req := map[string]any{"prompt": *prompt}
		if *scenes > 0 {
			req["scenes"] = *scenes
		}
		var resp storyResponse
		if err := c.post("/story/start", nil, req, &resp); err != nil {
			fail("Error starting story: %v", err)
		}
		id = resp.SessionID
		printStory(os.Stdout, resp)
	}

	if *branch != "" {
		step, choice, err := parseBranch(*branch)
		if err != nil {
			fail("Invalid -branch: %v", err)
		}
		var resp storyResponse
		err = c.post("/story/branch", nil, map[string]any{"session_id": id, "step": step, "choice_idx": choice}, &resp)
		if err != nil {
			fail("Error branching story: %v", err)
		}
		printStory(os.Stdout, resp)
	}

	query := url.Values{"session_id": {id}}
	if *render {
		var resp struct {
			Images []string `json:"images"`
		}
		if err := c.post("/story/render", query, nil, &resp); err != nil {
			fail("Error rendering story: %v", err)
		}
		for _, img := range resp.Images {
			fmt.Println("image:", img)
		}
	}
	if *pdf {
		var resp map[string]string
		if err := c.post("/export/pdf", query, nil, &resp); err != nil {
			fail("Error exporting document: %v", err)
		}
		fmt.Println("pdf:", resp["pdf"])
	}
	if *video {
		var resp map[string]string
		if err := c.post("/export/video", query, nil, &resp); err != nil {
			fail("Error exporting video: %v", err)
		}
		fmt.Println("video:", resp["video"])
	}
}

func parseBranch(raw string) (int, int, error) {
	stepStr, choiceStr, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected STEP:CHOICE, got %q", raw)
	}
	step, err := strconv.Atoi(stepStr)
	if err != nil {
		return 0, 0, fmt.Errorf("step: %w", err)
	}
	choice, err := strconv.Atoi(choiceStr)
	if err != nil {
		return 0, 0, fmt.Errorf("choice: %w", err)
	}
	return step, choice, nil
}

func (c *client) post(path string, query url.Values, payload, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, target, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error response: %s, status: %d", string(bodyBytes), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func printStory(w io.Writer, resp storyResponse) {
	fmt.Fprintf(w, "session %s (revision %d)\n", resp.SessionID, resp.Revision)
	if resp.StaleArtifacts {
		fmt.Fprintln(w, "  rendered images predate this branch; run -render again")
	}
	for i, raw := range resp.Beats {
		var b beat
		if err := json.Unmarshal(raw, &b); err != nil || b.Text == "" {
			fmt.Fprintf(w, "  [%d] %s\n", i, string(raw))
			continue
		}
		fmt.Fprintf(w, "  [%d] %s\n", i, b.Text)
		for j, choice := range b.Choices {
			fmt.Fprintf(w, "      %d) %s\n", j, choice)
		}
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
