package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/cli"
	"github.com/eburon/brokerdial/pkg/crm"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List and fetch committed call recordings",
}

// recordingRow is one recording in a lead's history.
type recordingRow struct {
	LeadID    string        `json:"leadId" yaml:"leadId"`
	LeadName  string        `json:"leadName" yaml:"leadName"`
	Recording crm.Recording `json:"recording" yaml:"recording"`
}

type recordingTable []recordingRow

func (recordingTable) TableHeaders() []string {
	return []string{"LEAD", "RECORDING", "CAPTURED", "DURATION", "OUTCOME"}
}

func (t recordingTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.LeadName,
			r.Recording.ID,
			r.Recording.CapturedAt.Time().Local().Format("2006-01-02 15:04:05"),
			cli.FormatDuration(time.Duration(r.Recording.DurationSeconds) * time.Second),
			string(r.Recording.Outcome),
		})
	}
	return rows
}

var recordingsLead string

var recordingsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings filed on leads, newest first per lead",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			var leads []*crm.Lead
			if recordingsLead != "" {
				lead, err := e.crm.GetLead(cmd.Context(), recordingsLead)
				if err != nil {
					return err
				}
				leads = []*crm.Lead{lead}
			} else {
				var err error
				if leads, err = e.crm.GetLeads(cmd.Context()); err != nil {
					return err
				}
			}
			var rows recordingTable
			for _, l := range leads {
				for _, r := range l.Recordings {
					rows = append(rows, recordingRow{LeadID: l.ID, LeadName: l.Name(), Recording: r})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No recordings.")
				return nil
			}
			return output(cmd, rows)
		})
	},
}

var recordingsOut string

var recordingsGetCmd = &cobra.Command{
	Use:   "get <lead-id> <recording-id>",
	Short: "Write a recording's audio to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			lead, err := e.crm.GetLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var rec *crm.Recording
			for i := range lead.Recordings {
				if lead.Recordings[i].ID == args[1] {
					rec = &lead.Recordings[i]
				}
			}
			if rec == nil {
				return fmt.Errorf("lead %s has no recording %s", lead.ID, args[1])
			}
			body, err := e.files.Open(cmd.Context(), rec.ArtifactHandle)
			if err != nil {
				return err
			}
			defer body.Close()

			out := recordingsOut
			if out == "" {
				out = rec.ID + ".wav"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			n, err := io.Copy(f, body)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%s)\n", out, cli.FormatBytes(n))
			return nil
		})
	},
}

func init() {
	recordingsListCmd.Flags().StringVar(&recordingsLead, "lead", "", "only this lead")
	recordingsGetCmd.Flags().StringVarP(&recordingsOut, "out", "O", "", "output file (default <recording-id>.wav)")

	recordingsCmd.AddCommand(recordingsListCmd, recordingsGetCmd)
	rootCmd.AddCommand(recordingsCmd)
}
