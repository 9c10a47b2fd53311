package authsdk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginRequest_Validate(t *testing.T) {
	require.Nil(t, LoginRequest{Role: "Consultant", Email: "kai@example.com", Password: "x"}.Validate())

	errs := LoginRequest{Role: "intern", Email: "kai", Password: ""}.Validate()
	require.Contains(t, errs, "role")
	require.Contains(t, errs, "email")
	require.Equal(t, "required", errs["password"])
}

func TestVerifyMFARequest_Validate(t *testing.T) {
	require.Nil(t, VerifyMFARequest{ChallengeID: "abc", Code: "012345"}.Validate())

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		errs := VerifyMFARequest{ChallengeID: "abc", Code: code}.Validate()
		require.Contains(t, errs, "code", code)
	}
	require.Contains(t, VerifyMFARequest{Code: "123456"}.Validate(), "challenge_id")
}

func TestUpdateMFASettingsRequest_Validate(t *testing.T) {
	require.Nil(t, UpdateMFASettingsRequest{Enabled: true}.Validate())
	require.Nil(t, UpdateMFASettingsRequest{Enabled: true, Channel: "EMAIL", Destination: "a@example.com"}.Validate())

	errs := UpdateMFASettingsRequest{Channel: "sms", Destination: "nope"}.Validate()
	require.Contains(t, errs, "channel")
	require.Contains(t, errs, "destination")
}

func TestBootstrapAndAccountRequests_Validate(t *testing.T) {
	require.Nil(t, BootstrapRequest{AdminEmail: "root@example.com", AdminName: "Root", AdminPassword: "0123456789"}.Validate())

	errs := BootstrapRequest{AdminEmail: "root", AdminPassword: "short"}.Validate()
	require.Contains(t, errs, "admin_email")
	require.Contains(t, errs, "admin_name")
	require.Contains(t, errs, "admin_password")

	errs = CreateAccountRequest{Role: "admin", Email: "a@example.com", Name: "A", Password: "0123456789"}.Validate()
	require.Nil(t, errs)
	errs = CreateAccountRequest{Role: "boss", Email: "a@example.com", Name: "A", Password: "0123456789"}.Validate()
	require.Contains(t, errs, "role")

	require.Contains(t, ChangePasswordRequest{CurrentPassword: "x", NewPassword: "tiny"}.Validate(), "new_password")
}
