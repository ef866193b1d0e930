package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hanabi-live/hanabi-server-go/internal/game"
)

func replayCmd() *cobra.Command {
	var (
		dir    string
		move   int
		step   bool
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "replay <game-id>",
		Short: "Print the state of a saved game",
		Long: `Load a saved replay and print the game state as JSON.

Examples:
  hanabi-server replay 3f1c... --dir replays
  hanabi-server replay 3f1c... --move 12
  hanabi-server replay 3f1c... --step
  hanabi-server replay 3f1c... --verify`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replay, err := game.LoadReplayFromFile(dir, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if verify {
				if err := replay.Verify(); err != nil {
					return err
				}
				fmt.Fprintf(out, "replay %s verified (%d moves)\n", replay.GameID, replay.Size())
				return nil
			}
			if step {
				return printSteps(out, replay)
			}

			if _, err := replay.Start(); err != nil {
				return err
			}
			skip := move
			if skip < 0 {
				skip = replay.Size()
			}
			state, err := replay.Skip(skip)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(state); err != nil {
				return fmt.Errorf("failed to encode state: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "replays", "Directory holding saved replays")
	cmd.Flags().IntVarP(&move, "move", "m", -1, "Number of moves to apply (default: all)")
	cmd.Flags().BoolVar(&step, "step", false, "Print the snapshot after every move, one JSON object per line")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check that the replay rebuilds the recorded game")
	cmd.MarkFlagsMutuallyExclusive("move", "step", "verify")

	return cmd
}

func printSteps(w io.Writer, replay *game.Replay) error {
	enc := json.NewEncoder(w)
	state, err := replay.Start()
	for state != nil && err == nil {
		var snap game.Snapshot
		snap, err = state.Snapshot()
		if err != nil {
			break
		}
		if err = enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		state, err = replay.Next()
	}
	return err
}
