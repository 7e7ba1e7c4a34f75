package claims

import (
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/giantswarm/jwt-oidc/internal/util"
)

// Kind identifies the purpose of a credential.
type Kind string

const (
	KindCode    Kind = "code"
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindID      Kind = "id"
)

// Scopes that control which profile claims are released.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

// DefaultLocale is embedded when the login step supplies no locale.
const DefaultLocale = "en"

// Set is a claim-set variant that can be encoded into a credential.
type Set interface {
	Kind() Kind
}

// Address is the OIDC structured address claim.
type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// User is the authenticated identity handed over by the login step.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

// Normalize returns a copy of u with the defaults applied when it is
// embedded into a credential: the email counts as verified, the name falls
// back to the email's local part and the locale to DefaultLocale.
func (u User) Normalize() User {
	u.EmailVerified = true
	if u.Name == "" {
		u.Name = util.EmailLocalPart(u.Email)
	}
	if u.Locale == "" {
		u.Locale = DefaultLocale
	}
	return u
}

// Profile returns the standard profile claims describing u.
func (u User) Profile() Profile {
	verified := u.EmailVerified
	return Profile{
		Name:          u.Name,
		GivenName:     u.GivenName,
		FamilyName:    u.FamilyName,
		Email:         u.Email,
		EmailVerified: &verified,
		Locale:        u.Locale,
	}
}

// Profile holds the standard OIDC profile claims. Absent claims are omitted
// from the payload rather than encoded as null.
type Profile struct {
	Name                string   `json:"name,omitempty"`
	GivenName           string   `json:"given_name,omitempty"`
	FamilyName          string   `json:"family_name,omitempty"`
	Email               string   `json:"email,omitempty"`
	EmailVerified       *bool    `json:"email_verified,omitempty"`
	Locale              string   `json:"locale,omitempty"`
	Zoneinfo            string   `json:"zoneinfo,omitempty"`
	PhoneNumber         string   `json:"phone_number,omitempty"`
	PhoneNumberVerified *bool    `json:"phone_number_verified,omitempty"`
	Address             *Address `json:"address,omitempty"`
}

// ForScope keeps only the claims released by scope: email and
// email_verified for "email", the name parts and locale for "profile".
func (p Profile) ForScope(scope string) Profile {
	var out Profile
	if util.HasScope(scope, ScopeEmail) {
		out.Email = p.Email
		out.EmailVerified = p.EmailVerified
	}
	if util.HasScope(scope, ScopeProfile) {
		out.Name = p.Name
		out.GivenName = p.GivenName
		out.FamilyName = p.FamilyName
		out.Locale = p.Locale
		out.Zoneinfo = p.Zoneinfo
	}
	return out
}

// UserInfo is the userinfo endpoint response.
type UserInfo struct {
	Subject string `json:"sub"`
	Profile
}

// AuthorizationCode is the payload of an authorization code.
type AuthorizationCode struct {
	AuthTime            *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce               string           `json:"nonce,omitempty"`
	CodeChallenge       string           `json:"code_challenge,omitempty"`
	CodeChallengeMethod string           `json:"code_challenge_method,omitempty"`
	Scope               string           `json:"scope,omitempty"`
	RedirectURI         string           `json:"redirect_uri,omitempty"`
	User                User             `json:"user"`
}

func (*AuthorizationCode) Kind() Kind { return KindCode }

// Access is the payload of an access token.
type Access struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Profile
}

func (*Access) Kind() Kind { return KindAccess }

// Refresh is the payload of a refresh token. It embeds the user so that a
// refresh never needs a backing store.
type Refresh struct {
	Scope    string           `json:"scope,omitempty"`
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	User     User             `json:"user"`
}

func (*Refresh) Kind() Kind { return KindRefresh }

// ID is the payload of an ID token.
type ID struct {
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce    string           `json:"nonce,omitempty"`
	AtHash   string           `json:"at_hash,omitempty"`
	Profile
}

func (*ID) Kind() Kind { return KindID }
