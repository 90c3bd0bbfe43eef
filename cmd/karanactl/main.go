package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"Karana-Planner/sdk/go/karana"
)

var (
	serverURL      string
	requestTimeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "karanactl",
		Short:         "Command line client for the Karana planning daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "Base URL of the karanad API server")
	root.PersistentFlags().DurationVar(&requestTimeout, "timeout", 15*time.Second, "Request timeout")

	root.AddCommand(
		newSubmitCmd(),
		newPreviewCmd(),
		newGetCmd(),
		newListCmd(),
		newConfirmCmd(),
		newCancelCmd(),
		newStatsCmd(),
		newHealthCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultServerURL() string {
	if url := os.Getenv("KARANA_SERVER"); url != "" {
		return url
	}
	return "http://127.0.0.1:8080"
}

// newClient 根据全局 flag 构造 SDK 客户端。
func newClient() (*karana.Client, error) {
	return karana.NewClient(serverURL, &http.Client{Timeout: requestTimeout})
}

// loadActions 从 JSON 文件读取预解析的动作列表。
func loadActions(path string) ([]karana.Action, error) {
	if path == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions file: %w", err)
	}
	var actions []karana.Action
	if err := json.Unmarshal(content, &actions); err != nil {
		return nil, fmt.Errorf("parse actions file: %w", err)
	}
	return actions, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
