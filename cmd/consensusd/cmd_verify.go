package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"consensus-engine/binlog"
	"consensus-engine/server"
)

const maxReportedMismatches = 10

var verifyCmd = &cobra.Command{
	Use:   "verify <recording> [replayed]",
	Short: "Check a recording, or compare the commands of two recordings",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		first, err := scanRecording(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d snapshots, %d commands, %d malformed, %d skipped\n",
			args[0], first.stats.Snapshots, first.stats.Commands, first.malformed, first.stats.Skipped)
		if len(args) == 1 {
			if first.malformed > 0 {
				return fmt.Errorf("%d malformed datagrams", first.malformed)
			}
			return nil
		}

		second, err := scanRecording(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d snapshots, %d commands, %d malformed, %d skipped\n",
			args[1], second.stats.Snapshots, second.stats.Commands, second.malformed, second.stats.Skipped)
		mismatches := compareCommands(out, first.commands, second.commands)
		if mismatches > 0 {
			fmt.Fprintln(out, "FAILURE: mismatches found")
			return fmt.Errorf("%d mismatches", mismatches)
		}
		fmt.Fprintln(out, "SUCCESS: all commands match")
		return nil
	},
}

type scan struct {
	stats     binlog.Stats
	commands  [][]byte
	malformed int
}

// scanRecording decodes every snapshot and command datagram of a recording.
func scanRecording(path string) (scan, error) {
	r, err := binlog.Open(path)
	if err != nil {
		return scan{}, err
	}
	defer r.Close()

	var s scan
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, err
		}
		switch rec.Flag {
		case binlog.FlagSnapshot:
			if _, err := server.DecodeSnapshot(rec.Payload); err != nil {
				s.malformed++
			}
		case binlog.FlagCommand:
			if _, _, err := server.DecodeCommands(rec.Payload); err != nil {
				s.malformed++
				continue
			}
			s.commands = append(s.commands, rec.Payload)
		}
	}
	s.stats = r.Stats()
	return s, nil
}

func compareCommands(out io.Writer, a, b [][]byte) int {
	mismatches := 0
	for i := 0; i < min(len(a), len(b)); i++ {
		if bytes.Equal(a[i], b[i]) {
			continue
		}
		mismatches++
		if mismatches <= maxReportedMismatches {
			fmt.Fprintf(out, "mismatch at command %d: len1=%d len2=%d\n", i, len(a[i]), len(b[i]))
		}
	}
	if len(a) != len(b) {
		fmt.Fprintf(out, "count mismatch: %d vs %d\n", len(a), len(b))
		mismatches++
	}
	return mismatches
}
