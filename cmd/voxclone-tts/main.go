package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxclone/voxclone/internal/client"
	"github.com/voxclone/voxclone/internal/config"
)

var (
	serverURL     string
	outputFile    string
	referenceID   string
	referenceFile string
	lang          string
	apiKey        string
)

var rootCmd = &cobra.Command{
	Use:   "voxclone-tts [text]",
	Short: "Read text aloud in a cloned voice",
	Long: `voxclone-tts is a command-line tool for voice-cloned speech generation.

Examples:
  # Use a stored reference
  voxclone-tts --reference-id 3f2a... "Hello, world!"

  # Clone from a local recording and save to file
  voxclone-tts --reference voice.webm -o output.wav "Hello in cloned voice"

  # Pick the language and server
  voxclone-tts --server http://gpu-box:8080 --lang de --reference-id 3f2a... "Guten Tag"`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runTTS,
}

func init() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	rootCmd.Flags().StringVarP(&serverURL, "server", "s", cfg.Server.ClientURL(), "voxclone server URL")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	rootCmd.Flags().StringVar(&referenceID, "reference-id", "", "Identifier of a stored reference")
	rootCmd.Flags().StringVar(&referenceFile, "reference", "", "Reference recording to clone from")
	rootCmd.Flags().StringVar(&lang, "lang", "", "Language code (default: server default)")
	rootCmd.Flags().StringVar(&apiKey, "api-key", cfg.Auth.APIKey, "API key for authentication")
	rootCmd.MarkFlagsMutuallyExclusive("reference-id", "reference")
}

func runTTS(cmd *cobra.Command, args []string) error {
	req := client.SynthesizeRequest{
		Text:        strings.Join(args, " "),
		Lang:        lang,
		ReferenceID: strings.TrimSuffix(referenceID, ".wav"),
	}

	if referenceFile != "" {
		audio, err := os.ReadFile(referenceFile)
		if err != nil {
			return fmt.Errorf("failed to read reference file: %w", err)
		}
		req.Audio = audio
		req.AudioName = filepath.Base(referenceFile)
	}

	if req.ReferenceID == "" && len(req.Audio) == 0 {
		return errors.New("one of --reference-id or --reference is required")
	}

	resp, err := client.New(serverURL, client.WithAPIKey(apiKey)).Synthesize(context.Background(), req)
	if err != nil {
		return err
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, resp.Audio, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Audio saved to %s (%d bytes, server file %s)\n", outputFile, len(resp.Audio), resp.Filename)
		return nil
	}

	_, err = os.Stdout.Write(resp.Audio)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
