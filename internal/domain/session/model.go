package session

import (
	"context"
	"net/url"
)

// State is the authentication state of the client.
type State string

const (
	StateAnonymous     State = "ANONYMOUS"
	StateAuthenticated State = "AUTHENTICATED"
)

// Reason explains the most recent move to ANONYMOUS.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
)

// Transition is delivered to watchers after every state change.
type Transition struct {
	From   State
	To     State
	Reason Reason
}

// TokenResponse is the body returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// FormPoster sends form-encoded requests.
type FormPoster interface {
	PostForm(ctx context.Context, path string, form url.Values, out any) error
}
