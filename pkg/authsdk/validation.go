package authsdk

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	reasonRequired = "required"
	reasonEmail    = "must be a valid email address"

	// MinPasswordLength mirrors the server-side password policy.
	MinPasswordLength = 10

	// CodeLength is the number of digits in an emailed code.
	CodeLength = 6
)

var roles = []string{"admin", "client", "manager", "rh", "comptable", "consultant"}

func validRole(r string) bool {
	for _, v := range roles {
		if strings.EqualFold(strings.TrimSpace(r), v) {
			return true
		}
	}
	return false
}

func validEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

func result(errs map[string]string) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate returns field errors, or nil when the request is well formed.
func (r LoginRequest) Validate() map[string]string {
	errs := map[string]string{}
	switch {
	case strings.TrimSpace(r.Role) == "":
		errs["role"] = reasonRequired
	case !validRole(r.Role):
		errs["role"] = "must be one of " + strings.Join(roles, ", ")
	}
	switch {
	case strings.TrimSpace(r.Email) == "":
		errs["email"] = reasonRequired
	case !validEmail(r.Email):
		errs["email"] = reasonEmail
	}
	if r.Password == "" {
		errs["password"] = reasonRequired
	}
	return result(errs)
}

func (r VerifyMFARequest) Validate() map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(r.ChallengeID) == "" {
		errs["challenge_id"] = reasonRequired
	}
	code := strings.TrimSpace(r.Code)
	switch {
	case code == "":
		errs["code"] = reasonRequired
	case len(code) != CodeLength || strings.Trim(code, "0123456789") != "":
		errs["code"] = "must be 6 digits"
	}
	return result(errs)
}

func (r ResendMFARequest) Validate() map[string]string {
	if strings.TrimSpace(r.ChallengeID) == "" {
		return map[string]string{"challenge_id": reasonRequired}
	}
	return nil
}

func (r UpdateMFASettingsRequest) Validate() map[string]string {
	errs := map[string]string{}
	if c := strings.TrimSpace(r.Channel); c != "" && !strings.EqualFold(c, "email") {
		errs["channel"] = "must be email"
	}
	if d := strings.TrimSpace(r.Destination); d != "" && !validEmail(d) {
		errs["destination"] = reasonEmail
	}
	return result(errs)
}

func (r ChangePasswordRequest) Validate() map[string]string {
	errs := map[string]string{}
	if r.CurrentPassword == "" {
		errs["current_password"] = reasonRequired
	}
	validatePassword(errs, "new_password", r.NewPassword)
	return result(errs)
}

func (r CreateAccountRequest) Validate() map[string]string {
	errs := map[string]string{}
	if !validRole(r.Role) {
		errs["role"] = "must be one of " + strings.Join(roles, ", ")
	}
	switch {
	case strings.TrimSpace(r.Email) == "":
		errs["email"] = reasonRequired
	case !validEmail(r.Email):
		errs["email"] = reasonEmail
	}
	validateName(errs, "name", r.Name)
	validatePassword(errs, "password", r.Password)
	return result(errs)
}

func (r BootstrapRequest) Validate() map[string]string {
	errs := map[string]string{}
	switch {
	case strings.TrimSpace(r.AdminEmail) == "":
		errs["admin_email"] = reasonRequired
	case !validEmail(r.AdminEmail):
		errs["admin_email"] = reasonEmail
	}
	validateName(errs, "admin_name", r.AdminName)
	validatePassword(errs, "admin_password", r.AdminPassword)
	return result(errs)
}

func validateName(errs map[string]string, field, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		errs[field] = reasonRequired
	case utf8.RuneCountInString(name) > 128:
		errs[field] = "too long (max 128)"
	}
}

func validatePassword(errs map[string]string, field, pw string) {
	switch n := utf8.RuneCountInString(pw); {
	case n == 0:
		errs[field] = reasonRequired
	case n < MinPasswordLength:
		errs[field] = "must be at least 10 characters"
	case n > 256:
		errs[field] = "too long (max 256)"
	}
}
