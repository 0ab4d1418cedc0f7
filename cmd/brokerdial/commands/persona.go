package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/persona"
)

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Show and edit the agent persona",
	Long: `The persona is the identity the voice agent takes on a call: name, role,
tone, language style and objectives. It is turned into the agent's
instruction text when a call starts.`,
}

var personaPrompt bool

var personaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current persona",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			p, err := e.personas.Get(cmd.Context())
			if err != nil {
				return err
			}
			if personaPrompt {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), persona.Build(p))
				return err
			}
			data, err := persona.Marshal(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		})
	},
}

var personaSetCmd = &cobra.Command{
	Use:   "set -f <file>",
	Short: "Replace the persona from a YAML file",
	Long: `Replace the persona from a YAML file. Fields left out keep the
default persona's value.

  name: Laurent De Wilde
  role: Senior real-estate broker
  tone: Warm and professional
  languageStyle: Flemish-accented Dutch, switching to French or English
  objectives:
    - Qualify the lead
    - Book a viewing`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		p, err := persona.LoadFile(file)
		if err != nil {
			return err
		}
		return withEnv(cmd.Context(), func(e *env) error {
			if err := e.personas.Set(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Persona set to %s\n", p.Name)
			return nil
		})
	},
}

var personaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default persona",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			if err := e.personas.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Persona reset to %s\n", persona.Default().Name)
			return nil
		})
	},
}

func init() {
	personaShowCmd.Flags().BoolVar(&personaPrompt, "prompt", false, "print the instruction text built from the persona")
	personaSetCmd.Flags().StringP("file", "f", "", "persona YAML file")

	personaCmd.AddCommand(personaShowCmd, personaSetCmd, personaResetCmd)
	rootCmd.AddCommand(personaCmd)
}
