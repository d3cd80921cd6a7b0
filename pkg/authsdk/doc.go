/*
Package authsdk is the client side of a bearer-token session: it signs in,
attaches the access token to outbound calls, refreshes the token when the
server reports it expired, and replays the calls that failed because of it.

# Components

  - SDKClient: unauthenticated calls to the session endpoints
    (POST /sessions, POST /refresh).
  - RequestClient: authenticated calls. Attaches "Authorization: Bearer"
    and routes "token.expired" failures to the RefreshCoordinator.
  - RefreshCoordinator: single-flight token renewal. One refresh runs at a
    time; callers that hit an expired token while it runs wait for it and
    then replay with the new token, or fail with the same error.
  - Session: the identity state of one execution context (a process, a tab).
    Loads the user at startup, signs in and out, and tells its peers about
    sign-outs over a broadcast.Channel.

# Wiring

Build one coordinator per process and share it between every RequestClient:

	sdk := authsdk.NewSDKClient("https://api.example.com")
	store := sessionstore.NewMemory()
	headers := authsdk.NewDefaultHeaders()

	coord := authsdk.NewRefreshCoordinator(sdk, store, headers)
	client := authsdk.NewRequestClient(sdk, store, headers, coord)

	sess := authsdk.NewSession(client,
		authsdk.WithChannel(hub),
		authsdk.WithNavigator(nav),
	)
	if err := sess.Init(ctx); err != nil {
		// token was present but rejected; the session has been signed out
	}

	var report Report
	err := client.GetJSON(ctx, "/reports/42", &report)

# Errors

Server failures come back as *APIError. Use errors.Is(err, ErrRefreshFailed)
to detect that a call was abandoned because the session could not be renewed;
by then the session is already signed out.
*/
package authsdk
