package cli_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/cli"
	"github.com/runwayhq/runway/runwayd/runwaydtest"
	"github.com/runwayhq/runway/runwaysdk"
)

func TestUserList(t *testing.T) {
	t.Parallel()

	t.Run("Table", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		runwaydtest.CreateFirstUser(t, client)

		var root cli.RootCmd
		inv := root.Command().Invoke(
			"users", "list",
			"--url", client.URL.String(),
			"--token", client.SessionToken(),
		)
		var buf bytes.Buffer
		inv.Stdout = &buf

		err := inv.Run()
		require.NoError(t, err)
		require.Contains(t, buf.String(), "USERNAME")
		require.Contains(t, buf.String(), runwaydtest.FirstUserParams.Email)
	})

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		first := runwaydtest.CreateFirstUser(t, client)
		_, other := runwaydtest.CreateAnotherUser(t, client)

		var root cli.RootCmd
		inv := root.Command().Invoke(
			"users", "list", "--json",
			"--url", client.URL.String(),
			"--token", client.SessionToken(),
		)
		var buf bytes.Buffer
		inv.Stdout = &buf

		err := inv.Run()
		require.NoError(t, err)

		var users []runwaysdk.User
		require.NoError(t, json.Unmarshal(buf.Bytes(), &users))
		require.Len(t, users, 2)
		ids := []string{users[0].ID.String(), users[1].ID.String()}
		require.Contains(t, ids, first.UserID.String())
		require.Contains(t, ids, other.ID.String())
	})

	t.Run("NoURL", func(t *testing.T) {
		t.Parallel()
		var root cli.RootCmd
		inv := root.Command().Invoke("users", "list")
		inv.Stdout = &bytes.Buffer{}

		err := inv.Run()
		require.ErrorContains(t, err, "no deployment URL")
	})
}
