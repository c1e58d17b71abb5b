/*
Package authsdk is a Go client for the gate service.

# Overview

Client wraps the public HTTP surface: account flows (register, login,
logout, password reset), API token management, invite keys and the upstream
action relay.

	client, err := authsdk.NewClient("http://localhost:8080")

	// Register with an invite key. The client fetches and echoes the CSRF
	// token on its own.
	reg, err := client.Register(ctx, authsdk.RegisterRequest{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "Sup3rSecret",
		ConfirmPassword: "Sup3rSecret",
		InviteKey:       "BLUE16_1A2B3C4D",
	})

	// Use the API token as a bearer token.
	who, err := client.ValidateToken(ctx, reg.Token)

# Sessions and CSRF

State-changing account calls need a CSRF token bound to the server-side
session. The client keeps a cookie jar, reads the XSRF-TOKEN cookie the
server sets and sends it back in the X-CSRF-Token header. The server rotates
the token after login, registration and password reset; the jar picks up the
new value automatically.

A Client models one browser. Create one per simulated user.

# Error Handling

Non-2xx answers are returned as *APIError:

	_, err := client.Login(ctx, "alice", "wrong")
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		// wrong credentials
	}

# Relay

	res, err := client.Relay(ctx, "follow", authsdk.RelayRequest{
		TargetID:    1,
		Count:       3,
		APIPassword: os.Getenv("API_PASSWORD"),
	})
	fmt.Println(res.Data.SuccessCount, res.Data.ErrorCount)
*/
package authsdk
