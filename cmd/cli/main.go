package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// checkNow asks the API to check one monitor, or every enabled monitor when
// id is empty, and prints the JSON response.
func checkNow(client *http.Client, api, key, id string, out io.Writer) error {
	payload := map[string]string{}
	if id != "" {
		payload["monitorId"] = id
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(api, "/")+"/api/monitors/check-now", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintln(out, string(raw))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	flag.StringVar(&api, "api", api, "API base URL")
	key := flag.String("key", os.Getenv("API_KEY"), "public or admin API key")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: cli [flags] [monitor-id]")
		flag.PrintDefaults()
	}
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	if err := checkNow(client, api, *key, flag.Arg(0), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
