package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/ferry/archive"
	"github.com/xraph/ferry/id"
)

func addFilterFlags(cmd *cobra.Command, verb string) {
	f := cmd.Flags()
	f.String("class", "", verb+" jobs by the job type")
	f.String("queue", "", verb+" jobs by the queue the job was received on")
	f.String("config", "", verb+" jobs by the config used to queue the job")
	f.String("where", "", verb+" jobs matching a CEL expression, e.g. 'data.user_id == 7'")
	f.BoolP("force", "f", false, "Automatically assume yes in response to confirmation prompt")
}

// filterFromFlags builds an archive filter from the positional ids
// (comma-separated, possibly spread over several arguments) and the
// filter flags.
func filterFromFlags(cmd *cobra.Command, args []string) (archive.Filter, error) {
	var filter archive.Filter
	for _, arg := range args {
		for _, raw := range strings.Split(arg, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			fid, err := id.ParseFailedJobID(raw)
			if err != nil {
				return archive.Filter{}, fmt.Errorf("invalid failed job id %q: %w", raw, err)
			}
			filter.IDs = append(filter.IDs, fid)
		}
	}
	f := cmd.Flags()
	filter.Type, _ = f.GetString("class")
	filter.Queue, _ = f.GetString("queue")
	filter.Config, _ = f.GetString("config")
	filter.Where, _ = f.GetString("where")
	return filter, nil
}

// confirmer returns the archive.Confirm that asks question on the
// command's input unless --force is set. announce is printed once the
// operation is confirmed.
func confirmer(cmd *cobra.Command, question, announce string) archive.Confirm {
	force, _ := cmd.Flags().GetBool("force")
	out := cmd.OutOrStdout()
	return func(found int) bool {
		if !force && !ask(cmd.InOrStdin(), out, fmt.Sprintf(question, found)) {
			return false
		}
		fmt.Fprintf(out, announce+"\n", found)
		return true
	}
}

// ask prints a y/n question defaulting to n and reports whether the
// answer was y.
func ask(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/n) [n]\n> ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func newRequeueCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue [ids]",
		Short: "Requeue failed jobs",
		Long:  "Requeue failed jobs. ids is a comma-separated list of failed job IDs; without ids, every job matching the filter flags is requeued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filterFromFlags(cmd, args)
			if err != nil {
				return err
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := app.buildEngine(cmd, cfg, logger, "")
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			svc, err := eng.Archive()
			if err != nil {
				return err
			}
			report, err := svc.Requeue(cmd.Context(), filter, confirmer(cmd, "Requeue %d jobs?", "Requeueing %d jobs."))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case report.Found == 0:
				fmt.Fprintln(out, "0 jobs found.")
				return nil
			case report.Aborted:
				return nil
			}
			if report.Failed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to requeue %d jobs.\n", report.Failed)
			}
			if report.Succeeded > 0 {
				fmt.Fprintf(out, "%d jobs requeued.\n", report.Succeeded)
			}
			return nil
		},
	}
	addFilterFlags(cmd, "Requeue")
	return cmd
}

func newPurgeCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge_failed [ids]",
		Short: "Delete failed jobs",
		Long:  "Delete failed jobs. ids is a comma-separated list of failed job IDs; without ids, every job matching the filter flags is deleted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filterFromFlags(cmd, args)
			if err != nil {
				return err
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := app.buildEngine(cmd, cfg, logger, "")
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			svc, err := eng.Archive()
			if err != nil {
				return err
			}
			report, err := svc.Purge(cmd.Context(), filter, confirmer(cmd, "Delete %d jobs?", "Deleting %d jobs."))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case report.Found == 0:
				fmt.Fprintln(out, "0 jobs found.")
			case !report.Aborted:
				fmt.Fprintf(out, "%d jobs deleted.\n", report.Deleted)
			}
			return nil
		},
	}
	addFilterFlags(cmd, "Delete")
	return cmd
}
