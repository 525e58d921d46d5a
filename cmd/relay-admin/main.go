package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ngoyal88/studybuddy-relay/pkg/ledger"
	"github.com/ngoyal88/studybuddy-relay/pkg/prompt"
)

const (
	envFile   = ".env"
	apiKeyVar = "OPENAI_API_KEY"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "init":
		added, err := ensureEnvKey(envFile, apiKeyVar)
		if err != nil {
			log.Fatalf("failed to write .env: %v", err)
		}
		if added {
			fmt.Printf("Added %s= to %s. Fill in your key before starting the relay.\n", apiKeyVar, envFile)
		} else {
			fmt.Printf("%s already present in %s.\n", apiKeyVar, envFile)
		}
	case "stats":
		handleStats(os.Args[2:])
	case "prompt":
		handlePrompt(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("relay-admin commands:")
	fmt.Println("  init                 Add an OPENAI_API_KEY placeholder to .env")
	fmt.Println("  stats                Print a usage summary from a running relay")
	fmt.Println("     flags: -addr")
	fmt.Println("  prompt               Render a session system prompt")
	fmt.Println("     flags: -kind -topic -details -level -type -duration -stack")
}

// ensureEnvKey appends "key=" to the env file unless the key is already set.
func ensureEnvKey(path, key string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		return true, os.WriteFile(path, []byte(key+"=\n"), 0600)
	}

	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), key+"=") {
			return false, nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += key + "=\n"
	return true, os.WriteFile(path, []byte(content), 0600)
}

type dashboard struct {
	Stats    ledger.Stats            `json:"stats"`
	Logs     []ledger.Entry          `json:"logs"`
	Activity []ledger.ActivityBucket `json:"activity"`
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:3000", "Relay base URL")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := fetchDashboard(ctx, http.DefaultClient, *addr)
	if err != nil {
		log.Fatalf("failed to fetch dashboard: %v", err)
	}
	printStats(os.Stdout, d)
}

func fetchDashboard(ctx context.Context, client *http.Client, addr string) (*dashboard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/api/dashboard", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var d dashboard
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode dashboard: %w", err)
	}
	return &d, nil
}

func printStats(w io.Writer, d *dashboard) {
	s := d.Stats
	successRate := 0.0
	if s.TotalRequests > 0 {
		successRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
	}

	fmt.Fprintf(w, "Requests:      %d (%d ok, %d failed, %.1f%% success)\n",
		s.TotalRequests, s.SuccessfulRequests, s.FailedRequests, successRate)
	fmt.Fprintf(w, "Tokens:        %d (avg %.1f per request)\n", s.TotalTokens, s.AverageTokensPerRequest)
	fmt.Fprintf(w, "Cost:          $%.6f\n", s.TotalCost)
	fmt.Fprintf(w, "Today:         %d requests, %d tokens, $%.6f\n", s.RequestsToday, s.TokensToday, s.CostToday)
	fmt.Fprintf(w, "Last minute:   %d requests\n", s.RequestsPerMinute)
	fmt.Fprintf(w, "Avg latency:   %.0f ms\n", s.AverageLatencyMs)

	if len(d.Logs) == 0 {
		fmt.Fprintln(w, "No requests recorded yet")
		return
	}
	fmt.Fprintln(w, "\nRecent requests:")
	for i, e := range d.Logs {
		if i == 10 {
			break
		}
		status := "ok"
		if !e.Success {
			status = "failed: " + e.Error
		}
		fmt.Fprintf(w, "%2d) %s client=%s tokens=%d cost=$%.6f %s\n",
			i+1, e.Timestamp.Local().Format(time.RFC3339), e.Client, e.TotalTokens, e.Cost, status)
	}
}

func handlePrompt(args []string) {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	kind := fs.String("kind", "study", "Session kind: study or code")
	topic := fs.String("topic", "", "Topic to study or build")
	details := fs.String("details", "", "Extra details (study only)")
	level := fs.String("level", "beginner", "Level (study only)")
	sessionType := fs.String("type", "lesson", "Session type")
	duration := fs.Int("duration", 15, "Duration in minutes (study only)")
	stack := fs.String("stack", "nextjs-ts", "Tech stack (code only)")

	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	var (
		out string
		err error
	)
	switch *kind {
	case "study":
		out, err = prompt.Study(prompt.StudyConfig{
			Topic:       *topic,
			Details:     *details,
			Level:       *level,
			SessionType: *sessionType,
			Duration:    *duration,
		})
	case "code":
		out, err = prompt.Code(prompt.CodeConfig{Topic: *topic, SessionType: *sessionType, TechStack: *stack})
	default:
		err = fmt.Errorf("unknown kind %q", *kind)
	}
	if err != nil {
		log.Fatalf("failed to render prompt: %v", err)
	}
	fmt.Println(out)
}
