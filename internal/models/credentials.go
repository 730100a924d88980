package models

import "time"

// Origin records which step of the credential fallback chain produced a token.
type Origin string

const (
	OriginStoredRefresh   Origin = "stored-refresh"
	OriginLocalCookie     Origin = "local-cookie"
	OriginServiceFallback Origin = "service-fallback"
)

// CredentialToken is a bearer credential for the Spotify Web API.
//
// Tokens live for a single request and are never persisted themselves.
type CredentialToken struct {
	Value       string
	Origin      Origin
	ExpiresHint time.Time // zero when unknown
}

// CredentialInputs carries what the caller knows about the requesting user.
type CredentialInputs struct {
	AccountKey       string // Spotify user id bound to a stored refresh token
	LocalAccessToken string // client-held access token, used verbatim
}

// Empty reports whether neither input was supplied.
func (c CredentialInputs) Empty() bool {
	return c.AccountKey == "" && c.LocalAccessToken == ""
}
