package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/cli"
)

const appName = "brokerdial"

var (
	cfgFile     string
	contextName string
	outputFlag  string
	verbose     bool

	globalConfig *cli.Config
	configErr    error
)

var rootCmd = &cobra.Command{
	Use:   "brokerdial",
	Short: "Live voice calls for the broker CRM",
	Long: `brokerdial places outbound calls through a realtime voice agent that
speaks on behalf of a real-estate broker, records them on request and files
reviewed recordings into the lead history.

Configuration is stored in ~/.brokerdial/brokerdial/ and supports multiple
contexts, each naming a voice backend and a data directory.

Examples:
  brokerdial config add-context dev --backend gemini --api-key $GEMINI_API_KEY
  brokerdial leads seed
  brokerdial call "+32 477 12 34 56" --lead 1
  brokerdial serve --listen :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command returns the root command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.brokerdial/brokerdial/config.yaml)")
	pf.StringVarP(&contextName, "context", "c", "", "context to use (default is current context)")
	pf.StringVarP(&outputFlag, "output", "o", "table", "output format: table, yaml, json")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initConfig() {
	if cfgFile != "" {
		globalConfig, configErr = cli.LoadConfigWithPath(appName, cfgFile)
		return
	}
	globalConfig = cli.LoadConfigIfExists(appName)
}

// getConfig returns the loaded configuration, creating it on first use.
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configErr != nil {
			return nil, fmt.Errorf("%s config: %w", appName, configErr)
		}
		cfg, err := cli.LoadConfigWithPath(appName, cfgFile)
		if err != nil {
			return nil, fmt.Errorf("%s config: %w", appName, err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// getContext resolves the --context flag or the current context.
func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	return cfg.ResolveContext(contextName)
}

// dataContext is getContext for commands that only touch stored data.
// Without any configured context they work on the default data directory.
func dataContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	if contextName == "" && cfg.CurrentContext == "" {
		return &cli.Context{Name: "default"}, nil
	}
	return cfg.ResolveContext(contextName)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func output(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	if format == cli.FormatTable {
		if _, ok := v.(cli.Tabular); !ok {
			format = cli.FormatYAML
		}
	}
	return cli.Output(v, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
}

// stderrLogger is the logger of short-lived commands.
func stderrLogger() *slog.Logger {
	return newLogger(os.Stderr)
}
