package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fastygo/segments/domain"
)

var (
	flagUserEmail string
	flagUserRole  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users known to the segment store",
}

var userUpsertCmd = &cobra.Command{
	Use:   "upsert <id>",
	Short: "Create or update a user and its role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			fail("user upsert", domain.Invalidf("user id must be a positive integer"))
		}
		if flagUserRole != domain.RoleAdmin && flagUserRole != domain.RoleUser {
			fail("user upsert", domain.Invalidf("role must be %q or %q", domain.RoleAdmin, domain.RoleUser))
		}

		store, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		user := &domain.User{ID: id, Email: flagUserEmail, Role: flagUserRole}
		if err := store.Users.Upsert(cmd.Context(), user); err != nil {
			fail("user upsert", err)
		}

		if structured() {
			return printStructured(cmd.OutOrStdout(), user)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d saved with role %s\n", user.ID, user.Role)
		return nil
	},
}

func init() {
	userUpsertCmd.Flags().StringVar(&flagUserEmail, "email", "", "user email")
	userUpsertCmd.Flags().StringVar(&flagUserRole, "role", domain.RoleUser, "user role (admin or user)")
	userCmd.AddCommand(userUpsertCmd)
}
