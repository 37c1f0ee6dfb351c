package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxclone/voxclone/internal/config"
)

var (
	cfgFile string
	envFile string

	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "voxclone-server",
	Short: "Voice cloning API server",
	Long: `voxclone-server stores reference voice clips and synthesizes text in a
cloned voice by driving ffmpeg and an external synthesis model.

Start the server:
  voxclone-server

Start with custom settings:
  voxclone-server --listen 0.0.0.0:8080 --storage-root /var/lib/voxclone

Use environment variables (a .env file in the working directory is loaded first):
  VOX_LISTEN=0.0.0.0:8080 VOX_MODEL_COMMAND=/opt/xtts/bin/python voxclone-server`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voxclone-server %s\n", Version)
		fmt.Printf("  Commit:     %s\n", Commit)
		fmt.Printf("  Build Date: %s\n", BuildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.Flags().String("listen", defaults.Server.Listen, "Server listen address")
	rootCmd.Flags().Duration("read-timeout", defaults.Server.ReadTimeout, "HTTP read timeout")
	rootCmd.Flags().Duration("write-timeout", defaults.Server.WriteTimeout, "HTTP write timeout")

	rootCmd.Flags().String("storage-root", defaults.Storage.Root, "Root of the references and outputs directories")
	rootCmd.Flags().String("workspace-dir", "", "Parent of per-request scratch directories (default: system temp dir)")
	rootCmd.Flags().String("transcoder", defaults.Transcoder.Path, "Transcoder executable")
	rootCmd.Flags().String("model-command", defaults.Model.Command, "Synthesis model executable")
	rootCmd.Flags().StringSlice("model-args", defaults.Model.Args, "Arguments placed before the model's positional arguments")
	rootCmd.Flags().String("default-lang", defaults.Model.DefaultLanguage, "Language used when a request names none")

	rootCmd.Flags().String("mirror-nats-url", "", "NATS URL of the output mirror (empty = disabled)")
	rootCmd.Flags().String("mirror-bucket", defaults.Mirror.Bucket, "Object store bucket of the output mirror")

	rootCmd.Flags().String("api-key", "", "API key for authentication (empty = no auth)")
	rootCmd.Flags().Int("max-text-length", 0, "Maximum text length (0 = unlimited)")
	rootCmd.Flags().Int64("max-upload-bytes", defaults.Limits.MaxUploadBytes, "Maximum request body size (0 = unlimited)")

	rootCmd.Flags().String("log-level", defaults.Logging.Level, "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", defaults.Logging.Format, "Log format (json, text)")

	bindFlags()

	rootCmd.AddCommand(versionCmd)
}

func bindFlags() {
	bindings := []struct {
		key  string
		flag string
	}{
		{"server.listen", "listen"},
		{"server.read_timeout", "read-timeout"},
		{"server.write_timeout", "write-timeout"},
		{"storage.root", "storage-root"},
		{"storage.workspace", "workspace-dir"},
		{"transcoder.path", "transcoder"},
		{"model.command", "model-command"},
		{"model.args", "model-args"},
		{"model.default_language", "default-lang"},
		{"mirror.nats_url", "mirror-nats-url"},
		{"mirror.bucket", "mirror-bucket"},
		{"auth.api_key", "api-key"},
		{"limits.max_text_length", "max-text-length"},
		{"limits.max_upload_bytes", "max-upload-bytes"},
		{"logging.level", "log-level"},
		{"logging.format", "log-format"},
	}

	for _, b := range bindings {
		flag := rootCmd.Flags().Lookup(b.flag)
		if flag == nil {
			continue
		}
		_ = viper.BindPFlag(b.key, flag)
	}
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "Ignoring env file:", err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, vars := range config.EnvVars() {
		_ = viper.BindEnv(append([]string{key}, vars...)...)
	}

	defaults := config.Default()
	viper.SetDefault("server.listen", defaults.Server.Listen)
	viper.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	viper.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	viper.SetDefault("server.url", "")
	viper.SetDefault("storage.root", defaults.Storage.Root)
	viper.SetDefault("storage.references", "")
	viper.SetDefault("storage.outputs", "")
	viper.SetDefault("storage.workspace", "")
	viper.SetDefault("transcoder.path", defaults.Transcoder.Path)
	viper.SetDefault("model.command", defaults.Model.Command)
	viper.SetDefault("model.args", defaults.Model.Args)
	viper.SetDefault("model.default_language", defaults.Model.DefaultLanguage)
	viper.SetDefault("mirror.nats_url", "")
	viper.SetDefault("mirror.bucket", defaults.Mirror.Bucket)
	viper.SetDefault("auth.api_key", "")
	viper.SetDefault("limits.max_text_length", defaults.Limits.MaxTextLength)
	viper.SetDefault("limits.max_upload_bytes", defaults.Limits.MaxUploadBytes)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)

	bindFlags()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
