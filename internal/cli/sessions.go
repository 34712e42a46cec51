package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vietddude/botkeeper/internal/server"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"bots"},
	Short:   "Manage sessions of a running botkeeper",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every session and its status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := NewAPIClient(apiAddr).List(cmd.Context())
		if err != nil {
			return err
		}
		return printSessions(cmd.OutOrStdout(), list, !isTerminal(cmd.OutOrStdout()))
	},
}

var sessionsAddCmd = &cobra.Command{
	Use:   "add HOST PORT USERNAME",
	Short: "Create a session",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		id, err := NewAPIClient(apiAddr).Add(cmd.Context(), args[0], port, args[2])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
		return err
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Delete a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return NewAPIClient(apiAddr).Delete(cmd.Context(), args[0])
	},
}

var sessionsReconnectCmd = &cobra.Command{
	Use:   "reconnect ID",
	Short: "Tear a session down and recreate it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		return NewAPIClient(apiAddr).Reconnect(ctx, args[0])
	},
}

func init() {
	sessionsCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging("")
		slog.Debug("Using control surface", "addr", apiAddr)
	}
	sessionsCmd.AddCommand(sessionsListCmd, sessionsAddCmd, sessionsDeleteCmd, sessionsReconnectCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSessions writes a table, or JSON when the output is piped.
func printSessions(w io.Writer, list []server.Session, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSERVER\tUSERNAME\tSTATUS\tHEALTH\tFOOD\tERROR")
	for _, s := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s:%d\t%s\t%s\t%.0f\t%d\t%s\n",
			s.ID, s.Host, s.Port, s.Username, s.Status, s.Health, s.Food, s.Error)
	}
	return tw.Flush()
}
