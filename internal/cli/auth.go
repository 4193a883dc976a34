package cli

import (
	"github.com/spf13/cobra"

	"xqueue/internal/xapi"
)

func newAuthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Credential helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report which API credentials are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := xapi.CheckAuth(a.cfg.API.EnvFile)
			if a.out.JSONMode() {
				return a.out.JSON(st)
			}
			mark := func(ok bool) string {
				if ok {
					return "set"
				}
				return "missing"
			}
			a.out.Line("%s: %s", xapi.EnvAccessToken, mark(st.AccessToken))
			a.out.Line("%s: %s", xapi.EnvClientID, mark(st.ClientID))
			a.out.Line("%s: %s", xapi.EnvClientSecret, mark(st.ClientSecret))
			for _, n := range st.Notes {
				a.out.Line("note: %s", n)
			}
			return nil
		},
	})

	return cmd
}
