/*
Package mfasdk provides a client SDK for the PHI MFA service.

# Overview

The package is organized around two types:

  - Client: unauthenticated operations (health checks) and a factory for callers
  - Caller: operations performed on behalf of one identity, authenticated by a
    bearer token minted upstream

	client := mfasdk.NewClient("https://mfa.example.com")

	health, err := client.GetReadiness(ctx)

	caller := client.WithToken(accessToken)

	setup, err := caller.Setup(ctx, "clinician@example.com")
	verify, err := caller.Verify(ctx, code, true)

# Errors

Every non-2xx response is returned as an *APIError. Verification failures
carry the remaining attempt count and, when rate limited, the retry delay:

	var apiErr *mfasdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == mfasdk.ErrorCodeRateLimited {
		time.Sleep(apiErr.RetryAfter())
	}

The request and response types in this package are shared with the server so
the wire format is defined in one place.
*/
package mfasdk
