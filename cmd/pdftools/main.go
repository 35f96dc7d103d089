// Package main is the entry point for the pdftools CLI. Each conversion tool is a
// subcommand; serve runs the HTTP converter locally.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "pdftools",
	Short:   "Convert and compress PDFs, images and Word documents",
	Version: version,
	Long: `pdftools runs the conversion tools from the command line: images to PDF, PDF
pages to images, Word to PDF, PDF to Word and PDF compression. Results are written
to the output directory; compressions are recorded in the history store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if viper.GetBool("verbose") {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./pdftools.yaml or ~/.config/pdftools/pdftools.yaml)")
	flags.StringP("output", "o", ".", "directory results are written to")
	flags.BoolP("verbose", "v", false, "log workflow stages")
	flags.String("history-backend", "file", "history store: memory, file, redis or firestore")
	flags.String("history-file", defaultHistoryFile(), "history file for the file backend")
	_ = viper.BindPFlag("output", flags.Lookup("output"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("history.backend", flags.Lookup("history-backend"))
	_ = viper.BindPFlag("history.file", flags.Lookup("history-file"))

	viper.SetDefault("history.collection", "pdftools")
	viper.SetDefault("history.document", "compressionHistory")
	viper.SetDefault("history.redis.addr", "localhost:6379")
	viper.SetDefault("history.redis.prefix", "pdftools:")
	viper.SetDefault("vertex.model", "gemini-1.5-pro")

	rootCmd.AddCommand(
		newJPGToPDFCmd(),
		newPDFToJPGCmd(),
		newWordToPDFCmd(),
		newPDFToWordCmd(),
		newCompressCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)
}

func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pdftools")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pdftools"))
		}
	}

	viper.SetEnvPrefix("PDFTOOLS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "compression_history.json"
	}
	return filepath.Join(home, ".config", "pdftools", "compression_history.json")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
