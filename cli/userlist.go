package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/coder/serpent"
)

func (r *RootCmd) users() *serpent.Command {
	return &serpent.Command{
		Use:   "users",
		Short: "Manage users on the deployment",
		Children: []*serpent.Command{
			r.userList(),
		},
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
	}
}

func (r *RootCmd) userList() *serpent.Command {
	var outputJSON bool

	return &serpent.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Options: serpent.OptionSet{
			{
				Flag:        "json",
				Description: "Emit the user list in machine-readable JSON format.",
				Value:       serpent.BoolOf(&outputJSON),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			client, err := r.Client()
			if err != nil {
				return err
			}
			users, err := client.Users(inv.Context())
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(inv.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(users)
			}

			tw := tabwriter.NewWriter(inv.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "USERNAME\tEMAIL\tSTATUS\tCREATED AT")
			for _, user := range users {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					user.Username, user.Email, user.Status,
					user.CreatedAt.Format(time.RFC3339),
				)
			}
			return tw.Flush()
		},
	}
}
