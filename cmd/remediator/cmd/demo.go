package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/softcane/kube-remediator/internal/remediation"
	"github.com/softcane/kube-remediator/internal/synthetic"
)

var (
	demoServer   string
	demoCount    int
	demoInterval time.Duration
	demoSeed     int64
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Send synthetic predictions to a running server",
	Long: `Demo generates random predictions of every issue type, posts them to
/remediate on a running server and prints the effectiveness summary.

Example:
  remediator serve &
  remediator demo --count 20 --interval 500ms`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().StringVar(&demoServer, "server", "http://localhost:8000",
		"Base URL of the remediation server")
	demoCmd.Flags().IntVar(&demoCount, "count", 10,
		"Number of predictions to send")
	demoCmd.Flags().DurationVar(&demoInterval, "interval", time.Second,
		"Delay between predictions")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 0,
		"Random seed (0 uses a fixed default)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := &demoRunner{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  strings.TrimRight(demoServer, "/"),
		gen:      synthetic.New(synthetic.Config{Seed: demoSeed}),
		interval: demoInterval,
		out:      os.Stdout,
	}
	return d.run(ctx, demoCount)
}

type demoRunner struct {
	client   *http.Client
	baseURL  string
	gen      *synthetic.Generator
	interval time.Duration
	out      io.Writer
}

func (d *demoRunner) run(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		if i > 0 && d.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.interval):
			}
		}

		p := d.gen.Next()
		var result remediation.RemediationResult
		if err := d.do(ctx, http.MethodPost, "/remediate", p, &result); err != nil {
			return err
		}

		slog.Info("prediction handled",
			"issue_type", p.IssueType,
			"confidence", p.Confidence,
			"success", result.Success,
			"actions", len(result.Actions),
			"error", result.Error,
		)
	}

	var summary json.RawMessage
	if err := d.do(ctx, http.MethodGet, "/effectiveness", nil, &summary); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, summary, "", "  "); err != nil {
		return fmt.Errorf("failed to format effectiveness: %w", err)
	}
	_, err := fmt.Fprintln(d.out, pretty.String())
	return err
}

func (d *demoRunner) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
