package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fastygo/segments/domain"
)

var flagPurgeAs int64

var purgeCmd = &cobra.Command{
	Use:   "purge <segment-id>",
	Short: "Physically delete a segment and its revisions",
	Long: `Physically delete a segment and all of its revisions. This cannot be
undone and is refused unless --allow-purge is given or ALLOW_PHYSICAL_DELETE
is set. The acting user (--as, or actor in config.yaml) must be an admin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fail("purge", domain.Invalidf("segment id must be a positive integer"))
		}

		store, uc, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		actorID := flagPurgeAs
		if !cmd.Flags().Changed("as") {
			actorID = cliCfg.GetInt64(cfgKeyActor)
		}
		if actorID <= 0 {
			fail("purge", domain.Invalidf("an acting admin is required (--as or actor in config.yaml)"))
		}

		actor, err := store.Users.GetByID(cmd.Context(), actorID)
		if err != nil {
			fail("purge", err)
		}

		if err := uc.Purge(cmd.Context(), domain.CallerFromUser(actor), id); err != nil {
			fail("purge", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "segment %d purged\n", id)
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&flagAllowPurge, "allow-purge", false, "permit physical deletion")
	purgeCmd.Flags().Int64Var(&flagPurgeAs, "as", 0, "id of the admin performing the purge")
}
