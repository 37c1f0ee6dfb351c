package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxclone/voxclone/internal/audio"
	"github.com/voxclone/voxclone/internal/client"
	"github.com/voxclone/voxclone/internal/config"
	"github.com/voxclone/voxclone/internal/objectstore"
)

const requestTimeout = 5 * time.Minute

var (
	serverURL string
	apiKey    string
	output    string

	natsURL    string
	bucket     string
	outputFile string
)

var rootCmd = &cobra.Command{
	Use:   "voxclone-ctl",
	Short: "voxclone server management tool",
	Long: `voxclone-ctl is a management tool for voxclone servers.

Commands:
  health      Check server health
  references  Manage reference voice clips
  mirror      Fetch generated outputs from the NATS mirror

Defaults come from the same VOX_* environment as the server
(VOX_SERVER_URL or VOX_LISTEN, VOX_API_KEY, VOX_MIRROR_NATS_URL, VOX_MIRROR_BUCKET).`,
	SilenceUsage: true,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE:  runHealth,
}

var referencesCmd = &cobra.Command{
	Use:   "references",
	Short: "Manage reference voice clips",
}

var referencesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored references, newest first",
	RunE:  runReferencesList,
}

var referencesAddCmd = &cobra.Command{
	Use:   "add [audio-file]",
	Short: "Upload a recording as a new reference",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferencesAdd,
}

var referencesInspectCmd = &cobra.Command{
	Use:   "inspect [wav-file]",
	Short: "Show the format of a local WAV file and whether it is canonical",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferencesInspect,
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Access outputs mirrored to the NATS object store",
}

var mirrorGetCmd = &cobra.Command{
	Use:   "get [output-file-name]",
	Short: "Download a mirrored output",
	Args:  cobra.ExactArgs(1),
	RunE:  runMirrorGet,
}

func init() {
	cfg := loadDefaults()

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", cfg.Server.ClientURL(), "voxclone server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", cfg.Auth.APIKey, "API key for authentication")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(referencesCmd)

	referencesCmd.AddCommand(referencesListCmd)
	referencesCmd.AddCommand(referencesAddCmd)
	referencesCmd.AddCommand(referencesInspectCmd)

	rootCmd.AddCommand(mirrorCmd)
	mirrorCmd.AddCommand(mirrorGetCmd)
	mirrorGetCmd.Flags().StringVar(&natsURL, "nats-url", cfg.Mirror.NATSURL, "NATS URL of the output mirror")
	mirrorGetCmd.Flags().StringVar(&bucket, "bucket", cfg.Mirror.Bucket, "Object store bucket of the output mirror")
	mirrorGetCmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the audio here (default: the output name)")
}

// loadDefaults reads the shared VOX_* environment for flag defaults.
func loadDefaults() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.Default()
	}
	return cfg
}

func newClient() *client.Client {
	return client.New(serverURL, client.WithAPIKey(apiKey))
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := newClient().Health(ctx); err != nil {
		return err
	}

	if output == "json" {
		return printJSON(cmd.OutOrStdout(), map[string]string{"status": "ok"})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Status: ok")
	return nil
}

func runReferencesList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	refs, err := newClient().ListReferences(ctx)
	if err != nil {
		return err
	}

	if output == "json" {
		return printJSON(cmd.OutOrStdout(), refs)
	}

	out := cmd.OutOrStdout()
	if len(refs.References) == 0 {
		fmt.Fprintln(out, "No references found")
		return nil
	}

	fmt.Fprintln(out, "Voice References:")
	for _, name := range refs.References {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	return nil
}

func runReferencesAdd(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	ref, err := newClient().AddReference(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}

	if output == "json" {
		return printJSON(cmd.OutOrStdout(), ref)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Reference %s stored as %s\n", ref.ID, ref.Path)
	return nil
}

func runReferencesInspect(cmd *cobra.Command, args []string) error {
	format, err := audio.Inspect(args[0])
	if err != nil {
		return err
	}

	if output == "json" {
		return printJSON(cmd.OutOrStdout(), struct {
			audio.Format
			Canonical bool `json:"canonical"`
		}{format, format.IsCanonical()})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Format:    %s\n", format)
	if format.IsCanonical() {
		fmt.Fprintln(out, "Canonical: yes")
	} else {
		fmt.Fprintln(out, "Canonical: no")
	}
	return nil
}

func runMirrorGet(cmd *cobra.Command, args []string) error {
	if natsURL == "" {
		return errors.New("no mirror configured: set --nats-url or VOX_MIRROR_NATS_URL")
	}

	store, err := objectstore.Connect(natsURL, bucket)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	data, err := store.Download(ctx, args[0])
	if err != nil {
		return err
	}

	dst := outputFile
	if dst == "" {
		dst = filepath.Base(args[0])
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", dst, len(data))
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
