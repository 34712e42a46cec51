package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive shell for a running botkeeper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context(), NewAPIClient(apiAddr))
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

var consoleCompleter = readline.NewPrefixCompleter(
	readline.PcItem("list"),
	readline.PcItem("add"),
	readline.PcItem("delete"),
	readline.PcItem("reconnect"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

func runConsole(ctx context.Context, client *APIClient) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[32mbotkeeper>\033[0m ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    consoleCompleter,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintf(out, "Connected to %s. Type help for commands.\n", client.base)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := execLine(ctx, client, out, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// execLine runs one console command.
func execLine(ctx context.Context, client *APIClient, out io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "h":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  list                         show sessions")
		fmt.Fprintln(out, "  add HOST PORT USERNAME       create a session")
		fmt.Fprintln(out, "  delete ID                    delete a session")
		fmt.Fprintln(out, "  reconnect ID                 recreate a session")
		fmt.Fprintln(out, "  quit")
		return nil

	case "list", "ls":
		list, err := client.List(ctx)
		if err != nil {
			return err
		}
		return printSessions(out, list, false)

	case "add":
		if len(args) != 3 {
			return errors.New("usage: add HOST PORT USERNAME")
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		id, err := client.Add(ctx, args[0], port, args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %s\n", id)
		return nil

	case "delete", "rm":
		if len(args) != 1 {
			return errors.New("usage: delete ID")
		}
		if err := client.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", args[0])
		return nil

	case "reconnect":
		if len(args) != 1 {
			return errors.New("usage: reconnect ID")
		}
		if err := client.Reconnect(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "reconnected %s\n", args[0])
		return nil

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}
