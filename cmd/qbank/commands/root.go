// Package commands defines the qbank CLI.
package commands

import (
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Albertdeng23/GEEQuestionBank/internal/config"
	"github.com/Albertdeng23/GEEQuestionBank/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "qbank",
	Short: "Exam-paper question bank digitizer",
	Long: `qbank converts scanned exam-paper PDFs into a structured, searchable
question database. The digitize command runs the extraction pipeline over an
input directory, embed precomputes embedding vectors for every stored
question, and query ranks stored questions against a free-text query.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		if verbose {
			cfg.Observability.LogLevel = "debug"
		}
		if noColor {
			color.NoColor = true
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: "qbank",
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
