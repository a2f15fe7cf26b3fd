// Package runwaydtest starts an in-process Runway API backed by the
// in-memory database for tests.
package runwaydtest

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/slogtest"

	"github.com/runwayhq/runway/cryptorand"
	"github.com/runwayhq/runway/runwayd"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/database/pubsub"
	"github.com/runwayhq/runway/runwaysdk"
)

type Options struct {
	Database database.Store
	Pubsub   pubsub.Pubsub
	// APIRateLimit defaults to disabled so tight request loops in tests
	// don't trip the limiter.
	APIRateLimit int
}

// FirstUserParams are the credentials CreateFirstUser signs up with.
var FirstUserParams = runwaysdk.CreateFirstUserRequest{
	Email:    "testuser@runway.dev",
	Username: "testuser",
	Password: "SomeSecurePassword!",
}

// New starts an API server for the test and returns a client pointed at
// it. The server stops when the test finishes.
func New(t testing.TB, options *Options) *runwaysdk.Client {
	client, _ := NewWithAPI(t, options)
	return client
}

// NewWithAPI additionally returns the API for tests that reach into the
// options, such as the database or pubsub.
func NewWithAPI(t testing.TB, options *Options) (*runwaysdk.Client, *runwayd.API) {
	t.Helper()
	if options == nil {
		options = &Options{}
	}
	if options.Database == nil {
		options.Database = dbmem.New()
	}
	if options.Pubsub == nil {
		options.Pubsub = pubsub.NewInMemory()
	}
	if options.APIRateLimit == 0 {
		options.APIRateLimit = -1
	}

	api := runwayd.New(&runwayd.Options{
		Logger:       slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug),
		Database:     options.Database,
		Pubsub:       options.Pubsub,
		APIRateLimit: options.APIRateLimit,
	})

	server := httptest.NewServer(api.RootHandler)
	t.Cleanup(server.Close)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	api.AccessURL = serverURL

	return runwaysdk.New(serverURL), api
}

// CreateFirstUser creates the initial user and logs the client in as it.
func CreateFirstUser(t testing.TB, client *runwaysdk.Client) runwaysdk.CreateFirstUserResponse {
	t.Helper()
	resp, err := client.CreateFirstUser(context.Background(), FirstUserParams)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), runwaysdk.LoginRequest{
		Email:    FirstUserParams.Email,
		Password: FirstUserParams.Password,
	})
	require.NoError(t, err)
	return resp
}

// CreateAnotherUser creates a user with the given site roles and returns a
// client logged in as it.
func CreateAnotherUser(t testing.TB, client *runwaysdk.Client, roles ...string) (*runwaysdk.Client, runwaysdk.User) {
	t.Helper()
	name := randomUsername(t)
	req := runwaysdk.CreateUserRequest{
		Email:    name + "@runway.dev",
		Username: name,
		Password: "SomeSecurePassword!",
		Roles:    roles,
	}
	user, err := client.CreateUser(context.Background(), req)
	require.NoError(t, err)

	other := runwaysdk.New(client.URL)
	_, err = other.Login(context.Background(), runwaysdk.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	require.NoError(t, err)
	return other, user
}

func randomUsername(t testing.TB) string {
	suffix, err := cryptorand.HexString(16)
	require.NoError(t, err)
	return "user" + suffix
}
