package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voxclone/voxclone/internal/client"
	"github.com/voxclone/voxclone/internal/config"
)

type target struct {
	Text        string `json:"text"`
	ReferenceID string `json:"reference_id"`
	Lang        string `json:"lang,omitempty"`
}

var (
	serverURL   string
	apiKey      string
	count       int
	concurrency int
	text        string
	referenceID string
	lang        string
	targetsFile string
)

var rootCmd = &cobra.Command{
	Use:   "voxclone-bench",
	Short: "Load test the synthesis endpoint",
	Long: `voxclone-bench sends synthesis requests against a voxclone server and
reports latency percentiles.

  voxclone-bench --reference-id 3f2a... --count 50 --concurrency 8
  voxclone-bench --targets targets.json --count 200`,
	SilenceUsage: true,
	RunE:         runBench,
}

func init() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	rootCmd.Flags().StringVarP(&serverURL, "server", "s", cfg.Server.ClientURL(), "voxclone server URL")
	rootCmd.Flags().StringVar(&apiKey, "api-key", cfg.Auth.APIKey, "API key for authentication")
	rootCmd.Flags().IntVar(&count, "count", 1, "Number of requests to send")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of concurrent requests")
	rootCmd.Flags().StringVar(&text, "text", "The quick brown fox jumps over the lazy dog.", "Text to synthesize")
	rootCmd.Flags().StringVar(&referenceID, "reference-id", "", "Stored reference to clone")
	rootCmd.Flags().StringVar(&lang, "lang", "", "Language code")
	rootCmd.Flags().StringVar(&targetsFile, "targets", "", "JSON file with a list of {text, reference_id, lang} targets")
}

// targets cycles through a fixed list of requests.
type targets struct {
	items []target
	next  atomic.Uint64
}

func (t *targets) pick() target {
	idx := t.next.Add(1) - 1
	return t.items[idx%uint64(len(t.items))]
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []target
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("no targets in file")
	}
	return items, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	items := []target{{Text: text, ReferenceID: referenceID, Lang: lang}}
	if targetsFile != "" {
		loaded, err := loadTargets(targetsFile)
		if err != nil {
			return fmt.Errorf("failed to load targets: %w", err)
		}
		items = loaded
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(serverURL, client.WithAPIKey(apiKey))
	sum := bench(ctx, c, &targets{items: items}, count, concurrency, func(err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "request error: %v\n", err)
	})

	sum.print(cmd.OutOrStdout())
	return nil
}

type synthesizer interface {
	Synthesize(ctx context.Context, req client.SynthesizeRequest) (*client.SynthesizeResponse, error)
}

// bench sends n requests with at most workers in flight and stops early when ctx ends.
func bench(ctx context.Context, c synthesizer, t *targets, n, workers int, onError func(error)) *summary {
	var (
		mu  sync.Mutex
		sum summary
	)

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := 0; i < n && ctx.Err() == nil; i++ {
		g.Go(func() error {
			res := do(ctx, c, t.pick())
			if res.err != nil && onError != nil {
				onError(res.err)
			}
			mu.Lock()
			sum.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &sum
}

func do(ctx context.Context, c synthesizer, tgt target) runResult {
	start := time.Now()
	resp, err := c.Synthesize(ctx, client.SynthesizeRequest{
		Text:        tgt.Text,
		Lang:        tgt.Lang,
		ReferenceID: tgt.ReferenceID,
	})
	if err != nil {
		return runResult{duration: time.Since(start), err: err}
	}
	return runResult{duration: time.Since(start), bytes: len(resp.Audio)}
}

func failureLabel(err error) string {
	if apiErr, ok := client.IsAPIError(err); ok {
		return fmt.Sprintf("status %d", apiErr.StatusCode)
	}
	switch {
	case errors.Is(err, client.ErrTimeout):
		return "timeout"
	case errors.Is(err, client.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
