package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs into SIPAC through CAS and prints the names of the session cookies.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack()
		if err != nil {
			return err
		}

		info, err := stack.Service.ForceReauthenticate(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, name := range info.Cookies {
			fmt.Fprintln(out, name)
		}
		fmt.Fprintf(out, "expires at %s\n", info.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}
