package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/crm"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List, show and seed CRM leads",
}

// leadTable renders leads as a table and marshals as a plain list.
type leadTable []*crm.Lead

func (leadTable) TableHeaders() []string {
	return []string{"ID", "NAME", "PHONE", "STATUS", "INTEREST", "CALLS", "LAST ACTIVITY"}
}

func (t leadTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, l := range t {
		rows = append(rows, []string{
			l.ID, l.Name(), l.Phone, string(l.Status), string(l.Interest),
			strconv.Itoa(len(l.Recordings)), l.LastActivity,
		})
	}
	return rows
}

var leadsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List leads",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			leads, err := e.crm.GetLeads(cmd.Context())
			if err != nil {
				return err
			}
			if len(leads) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No leads. Load some with: brokerdial leads seed")
				return nil
			}
			return output(cmd, leadTable(leads))
		})
	},
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a lead with its call history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			lead, err := e.crm.GetLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(cmd, lead)
		})
	},
}

var leadsSeedFile string

var leadsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load leads from a YAML file, or the demo leads",
	Long: `Load leads into the CRM. Leads that already exist are left untouched.

The file lists leads under a "leads" key:

  leads:
    - id: "1"
      firstName: Sophie
      lastName: Dubois
      phone: "+32 477 12 34 56"
      status: New
      interest: Buying`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		leads := crm.DemoLeads()
		if leadsSeedFile != "" {
			var err error
			if leads, err = crm.LoadSeedFile(leadsSeedFile); err != nil {
				return err
			}
		}
		return withEnv(cmd.Context(), func(e *env) error {
			n, err := crm.Seed(cmd.Context(), e.crm, leads)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %d of %d leads\n", n, len(leads))
			return nil
		})
	},
}

func init() {
	leadsSeedCmd.Flags().StringVarP(&leadsSeedFile, "file", "f", "", "seed file (default: demo leads)")

	leadsCmd.AddCommand(leadsListCmd, leadsShowCmd, leadsSeedCmd)
	rootCmd.AddCommand(leadsCmd)
}
