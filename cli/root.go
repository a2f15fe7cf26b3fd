// Package cli implements the runway command line interface.
package cli

import (
	"fmt"
	"net/url"
	"os"

	"golang.org/x/xerrors"

	"github.com/runwayhq/runway/runwaysdk"

	"github.com/coder/serpent"
)

// RootCmd holds flags shared by every subcommand.
type RootCmd struct {
	clientURL string
	token     string
}

func (r *RootCmd) Command() *serpent.Command {
	cmd := &serpent.Command{
		Use:   "runway",
		Short: "Runway automates playbook runs across a mesh of execution nodes.",
		Options: serpent.OptionSet{
			{
				Flag:        "url",
				Env:         "RUNWAY_URL",
				Description: "URL of the Runway deployment.",
				Value:       serpent.StringOf(&r.clientURL),
			},
			{
				Flag:        "token",
				Env:         "RUNWAY_SESSION_TOKEN",
				Description: "Session token for authenticating with the deployment.",
				Value:       serpent.StringOf(&r.token),
			},
		},
		Children: []*serpent.Command{
			r.server(),
			r.users(),
			r.version(),
		},
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
	}
	return cmd
}

// Client builds an SDK client from the root flags.
func (r *RootCmd) Client() (*runwaysdk.Client, error) {
	if r.clientURL == "" {
		return nil, xerrors.New("no deployment URL, set --url or RUNWAY_URL")
	}
	parsed, err := url.Parse(r.clientURL)
	if err != nil {
		return nil, xerrors.Errorf("parse deployment URL: %w", err)
	}
	client := runwaysdk.New(parsed)
	client.SetSessionToken(r.token)
	return client, nil
}

// RunMain executes the root command against os.Args and exits on error.
func RunMain() {
	var root RootCmd
	err := root.Command().Invoke().WithOS().Run()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
