/*
Package authsdk is the wire contract and Go client of the agencydesk
authentication service.

The server uses the request/response types and the APIError values in this
package to write its responses; other services and tools use SDKClient and
Session to talk to it.

# Logging in

Every account lives in the credential table of one role, so a login names
the role:

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, "consultant", "kai@example.com", password)

When the account has email MFA enabled, Login returns an *MFARequiredError
instead of a session. The code is emailed to the masked destination in the
error; pass it to VerifyMFA together with the challenge id:

	var mfa *authsdk.MFARequiredError
	if errors.As(err, &mfa) {
		session, err = client.VerifyMFA(ctx, mfa.ChallengeID, code)
	}

A code can be verified once. Expired, used and exhausted challenges fail with
ErrChallengeExpired, ErrChallengeConsumed and ErrAttemptsExceeded and cannot
be resent; the user signs in again. While a challenge is still live,
ResendMFA issues a fresh one, up to a limit per sign-in (ErrResendLimit). A
wrong code fails with ErrInvalidCode while attempts remain.

# Errors

Failed calls return an *APIError. APIError implements Is by code, so callers
match with errors.Is:

	if errors.Is(err, authsdk.ErrInvalidCode) {
		// ask again
	}

# Sessions

A Session wraps the bearer token. Me resolves it on the server, Logout
revokes it. Tokens are not refreshed; expired sessions log in again.
*/
package authsdk
