package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastygo/segments/domain"
)

var historyCmd = &cobra.Command{
	Use:   "history <segment-id>",
	Short: "Show a segment's revisions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fail("history", domain.Invalidf("segment id must be a positive integer"))
		}

		store, uc, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := uc.History(cmd.Context(), id)
		if err != nil {
			fail("history", err)
		}

		if structured() {
			return printStructured(cmd.OutOrStdout(), entries)
		}
		out := cmd.OutOrStdout()
		for _, entry := range entries {
			rev := entry.Revision
			kind := "update"
			switch {
			case rev.IsCreation:
				kind = "create"
			case rev.IsReversion:
				kind = "revert"
			}
			fmt.Fprintf(out, "#%d  %s  user=%d  %s\n", rev.ID, rev.Timestamp.Format("2006-01-02 15:04:05"), rev.UserID, kind)
			if rev.Message != nil && *rev.Message != "" {
				fmt.Fprintf(out, "    message: %s\n", *rev.Message)
			}
			if len(entry.Changes) > 0 {
				fmt.Fprintf(out, "    %s\n", strings.Join(entry.Changes, "\n    "))
			}
		}
		return nil
	},
}
