package entity

// Credentials is the provider-specific bag of secrets for one channel.
// It is loaded from the credential store at configure time, mutated in place
// whenever a session rotates tokens, and written back in full whenever access
// or refresh tokens change or are revoked.
//
// Fields not used by a given provider stay empty and are omitted from the
// JSON credential file.
type Credentials struct {
	// Identifier and Password drive the password-grant session exchange
	// (Bluesky handle + app password).
	Identifier string `json:"identifier,omitempty"`
	Password   string `json:"password,omitempty"`

	// AppID, AppSecret, RedirectURI and VerificationCode drive the
	// OAuth-code exchange (LinkedIn). The verification code is supplied
	// out of band by an external collaborator.
	AppID            string `json:"appId,omitempty"`
	AppSecret        string `json:"appSecret,omitempty"`
	RedirectURI      string `json:"redirectUri,omitempty"`
	VerificationCode string `json:"verificationCode,omitempty"`

	// AccessToken and RefreshToken are rotated by session refresh.
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`

	// OrganizationID scopes posts to an organization account (LinkedIn),
	// AccountID to a page or user account (Facebook page id, Twitter user id).
	OrganizationID string `json:"organizationId,omitempty"`
	AccountID      string `json:"accountId,omitempty"`
}

// ClearTokens wipes both rotated tokens, used when the provider reports the
// refresh token as revoked. Long-lived fields (identifier, app secrets) are
// kept so an operator can re-authorize without re-entering them.
func (c *Credentials) ClearTokens() {
	c.AccessToken = ""
	c.RefreshToken = ""
}
