package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage contexts",
	Long: `Manage contexts. A context names a voice backend and where call data
is kept.

Examples:
  brokerdial config add-context dev --backend gemini --api-key $GEMINI_API_KEY
  brokerdial config add-context prod --backend realtime --s3-bucket calls
  brokerdial config use-context prod
  brokerdial config list`,
}

var newContext cli.Context
var newContextS3 cli.S3Config
var newContextExtra []string

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		ctx := newContext
		ctx.Extra = nil
		for _, kv := range newContextExtra {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("--set %q: want key=value", kv)
			}
			ctx.SetExtra(k, v)
		}
		if newContextS3.Bucket != "" {
			s3 := newContextS3
			ctx.S3 = &s3
		}
		if err := cfg.AddContext(args[0], &ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Context %q saved to %s\n", args[0], cfg.Path())
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Switched to context %q\n", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context. Its data directory is kept.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted context %q\n", args[0])
		return nil
	},
}

type contextTable struct {
	current  string
	contexts []*cli.Context
}

func (contextTable) TableHeaders() []string {
	return []string{"CURRENT", "NAME", "BACKEND", "MODEL", "API KEY", "STORAGE"}
}

func (t contextTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.contexts))
	for _, c := range t.contexts {
		mark := ""
		if c.Name == t.current {
			mark = "*"
		}
		store := "local"
		if c.S3 != nil {
			store = "s3://" + c.S3.Bucket + "/" + c.S3.Prefix
		}
		rows = append(rows, []string{mark, c.Name, c.Backend, c.Model, cli.MaskAPIKey(c.APIKey), store})
	}
	return rows
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "list-contexts"},
	Short:   "List contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if len(names) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No contexts configured.")
			fmt.Fprintln(cmd.ErrOrStderr(), "Create one with: brokerdial config add-context <name> --backend gemini")
			return nil
		}
		t := contextTable{current: cfg.CurrentContext}
		for _, name := range names {
			t.contexts = append(t.contexts, cfg.Contexts[name])
		}
		format, err := cli.ParseOutputFormat(outputFlag)
		if err != nil {
			return err
		}
		if format != cli.FormatTable {
			// Keys stay masked whatever the format.
			masked := make(map[string]cli.Context, len(names))
			for _, c := range t.contexts {
				m := *c
				m.APIKey = cli.MaskAPIKey(c.APIKey)
				masked[c.Name] = m
			}
			return cli.Output(masked, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
		}
		return output(cmd, t)
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Print the current context name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			return fmt.Errorf("no current context")
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.StringVar(&newContext.Backend, "backend", cli.BackendGemini, "voice backend: gemini or realtime")
	f.StringVar(&newContext.APIKey, "api-key", "", "backend API key (default: from the environment)")
	f.StringVar(&newContext.BaseURL, "base-url", "", "backend endpoint override")
	f.StringVar(&newContext.Model, "model", "", "backend model")
	f.StringVar(&newContext.Voice, "voice", "", "agent voice")
	f.StringVar(&newContext.DataDir, "data-dir", "", "data directory (default ~/.brokerdial/brokerdial/data/<name>)")
	f.StringVar(&newContext.Listen, "listen", "", "serve address")
	f.StringVar(&newContext.Debounce, "debounce", "", "how long an ended call stays on screen, e.g. 2s")
	f.StringVar(&newContextS3.Bucket, "s3-bucket", "", "store recordings in this bucket")
	f.StringVar(&newContextS3.Prefix, "s3-prefix", "", "key prefix inside the bucket")
	f.StringVar(&newContextS3.Region, "s3-region", "", "bucket region")
	f.StringVar(&newContextS3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint (MinIO, R2)")
	f.StringArrayVar(&newContextExtra, "set", nil, "extra setting key=value, e.g. allowed_origins=http://localhost:5173")

	configCmd.AddCommand(
		configAddContextCmd,
		configUseContextCmd,
		configDeleteContextCmd,
		configListCmd,
		configCurrentContextCmd,
	)
	rootCmd.AddCommand(configCmd)
}
