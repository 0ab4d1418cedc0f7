// Package cli holds the pieces shared by the brokerdial commands: named
// configuration contexts, output formatting, well-known paths, and the
// terminal frame used by the live call view.
//
// Configuration lives in ~/.brokerdial/<app>/config.yaml and supports
// several contexts, like kubectl:
//
//	cfg, err := cli.LoadConfig("brokerdial")
//	ctx, err := cfg.ResolveContext(flagContext)
//
//	cli.Output(leads, cli.OutputOptions{Format: cli.FormatTable})
package cli
