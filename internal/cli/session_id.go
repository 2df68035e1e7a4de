package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionIDCommand(global *globalFlags) *cobra.Command {
	var reverse bool

	cmd := &cobra.Command{
		Use:   "session-id <id>",
		Short: "Translate a hashed session id back to the original user",
		Long: `Translate a session id of the form "{hash}_{n}" into "{user}_{n}"
using the persisted hash map. With --reverse, translate "{user}_{n}" into
its hashed form instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			a, logger, err := openApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			defer logger.Sync() //nolint:errcheck

			id, err := a.TranslateSessionID(cmd.Context(), args[0], reverse)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reverse, "reverse", false, "Hash an original session id instead")
	return cmd
}
