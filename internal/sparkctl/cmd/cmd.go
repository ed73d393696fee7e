// Package cmd implements sparkctl, the first-party operator CLI: status,
// ingest, ledger tail, tuneables show/set, and era rotate. Grounded on
// echoryn's echoctl root command (NewDefaultEchoCtlCommand/
// NewEchoCtlCommand), rebuilt as a flat cobra tree over only the
// dependencies this module actually declares rather than echoctl's own
// genericclioptions/cmdutil/templates scaffolding.
package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiosk404/spark/internal/era"
	"github.com/kiosk404/spark/internal/insight"
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/internal/tuneables"
	"github.com/kiosk404/spark/pkg/clock"
)

// globalOptions holds the flags every subcommand shares: which state
// directory to read and which daemon to talk to over HTTP.
type globalOptions struct {
	stateDir string
	addr     string
	token    string
}

// NewDefaultSparkCtlCommand creates the `sparkctl` command with default
// I/O streams, matching NewDefaultEchoCtlCommand's role for echoctl.
func NewDefaultSparkCtlCommand() *cobra.Command {
	return NewSparkCtlCommand(os.Stdout, os.Stderr)
}

// NewSparkCtlCommand builds the sparkctl root command and its subcommand
// tree over explicit out/err writers, so tests can capture output.
func NewSparkCtlCommand(out, errOut io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmds := &cobra.Command{
		Use:          "sparkctl",
		Short:        "sparkctl is the operator CLI for a running sparkd advisory daemon",
		SilenceUsage: true,
	}
	cmds.SetOut(out)
	cmds.SetErr(errOut)

	pf := cmds.PersistentFlags()
	pf.StringVar(&opts.stateDir, "state-dir", defaultStateDir(), "sparkd's state directory")
	pf.StringVar(&opts.addr, "addr", "http://127.0.0.1:8787", "sparkd's ingest HTTP address")
	pf.StringVar(&opts.token, "token", os.Getenv("SPARKD_TOKEN"), "bearer token for the ingest HTTP address")

	cmds.AddCommand(
		newStatusCommand(opts),
		newIngestCommand(opts),
		newLedgerCommand(opts),
		newTuneablesCommand(opts),
		newEraCommand(opts),
	)
	return cmds
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.spark"
	}
	return ".spark"
}

// --- status ---

type heartbeat struct {
	At json.Number `json:"at"`
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print a liveness scorecard for the daemon and bridge worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := statedir.Open(opts.stateDir)
			if err != nil {
				return fmt.Errorf("open state dir: %w", err)
			}

			printHeartbeat(cmd, "sparkd", dir.SparkdHeartbeat())
			printHeartbeat(cmd, "bridge_worker", dir.BridgeWorkerHeartbeat())
			printHeartbeat(cmd, "scheduler", dir.SchedulerHeartbeat())

			if ins, err := insight.Open(dir, clock.Real()); err == nil {
				vc := ins.Validation()
				fmt.Fprintf(cmd.OutOrStdout(), "insights: validated=%d invalidated=%d pending=%d\n",
					vc.Validated, vc.Invalidated, vc.Pending)
			}

			client := &http.Client{Timeout: 3 * time.Second}
			req, _ := http.NewRequest(http.MethodGet, strings.TrimRight(opts.addr, "/")+"/health", nil)
			if opts.token != "" {
				req.Header.Set("Authorization", "Bearer "+opts.token)
			}
			resp, err := client.Do(req)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "health: unreachable (%v)\n", err)
				return nil
			}
			defer resp.Body.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "health: %s\n", resp.Status)
			return nil
		},
	}
}

func printHeartbeat(cmd *cobra.Command, label, path string) {
	var hb heartbeat
	if err := statedir.ReadJSON(path, &hb); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s error: %v\n", label, err)
		return
	}
	if hb.At == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s no heartbeat recorded yet\n", label)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-14s last beat at unix %s\n", label, hb.At)
}

// --- ingest ---

func newIngestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "POST a single event file to the daemon's /ingest endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read event file: %w", err)
			}
			req, err := http.NewRequest(http.MethodPost, strings.TrimRight(opts.addr, "/")+"/ingest", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if opts.token != "" {
				req.Header.Set("Authorization", "Bearer "+opts.token)
			}
			resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
			if err != nil {
				return fmt.Errorf("post event: %w", err)
			}
			defer resp.Body.Close()
			respBody, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Status, strings.TrimSpace(string(respBody)))
			return nil
		},
	}
}

// --- ledger ---

func newLedgerCommand(opts *globalOptions) *cobra.Command {
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "inspect the advisory decision ledger",
	}
	ledger.AddCommand(newLedgerTailCommand(opts))
	return ledger
}

func newLedgerTailCommand(opts *globalOptions) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "print the last N rows of advisory_decision_ledger.jsonl",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := statedir.Open(opts.stateDir)
			if err != nil {
				return fmt.Errorf("open state dir: %w", err)
			}
			lines, err := tailLines(dir.AdvisoryLedger(), n)
			if err != nil {
				return fmt.Errorf("tail ledger: %w", err)
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of rows to print")
	return cmd
}

// tailLines returns the last n non-empty lines of path. It reads the whole
// file: ledger files are append-only JSONL capped by era rotation, so this
// stays proportionate to one era's worth of decisions, never the whole
// history.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			all = append(all, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// --- tuneables ---

func newTuneablesCommand(opts *globalOptions) *cobra.Command {
	tc := &cobra.Command{
		Use:   "tuneables",
		Short: "inspect or edit the operator-tunable policy document",
	}
	tc.AddCommand(newTuneablesShowCommand(opts), newTuneablesSetCommand(opts))
	return tc
}

func newTuneablesShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "print the current tuneables.json document",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := statedir.Open(opts.stateDir)
			if err != nil {
				return fmt.Errorf("open state dir: %w", err)
			}
			loader, err := tuneables.NewLoader(dir)
			if err != nil {
				return fmt.Errorf("open tuneables: %w", err)
			}
			out, err := json.MarshalIndent(loader.Current(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newTuneablesSetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <section.field> <value>",
		Short: "edit one field of tuneables.json, e.g. advisory_gate.note_threshold 0.1",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := statedir.Open(opts.stateDir)
			if err != nil {
				return fmt.Errorf("open state dir: %w", err)
			}
			loader, err := tuneables.NewLoader(dir)
			if err != nil {
				return fmt.Errorf("open tuneables: %w", err)
			}
			if err := loader.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

// --- era ---

func newEraCommand(opts *globalOptions) *cobra.Command {
	ec := &cobra.Command{
		Use:   "era",
		Short: "inspect or rotate the daemon's era",
	}
	ec.AddCommand(newEraRotateCommand(opts))
	return ec
}

func newEraRotateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "archive the current era's mutable stores and start a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := statedir.Open(opts.stateDir)
			if err != nil {
				return fmt.Errorf("open state dir: %w", err)
			}
			doc, err := era.Rotate(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rotated to era %d at %s\n", doc.Current, doc.RotatedAt.Format(time.RFC3339))
			return nil
		},
	}
}
