package credentials

import (
	"context"

	"golang.org/x/oauth2"
)

// GmailSendScope is the only scope requested: send mail as the user.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// GoogleEndpoint is Google's OAuth 2.0 authorization server.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// OAuthProvider is the delegated-authorization server.
type OAuthProvider interface {
	// AuthCodeURL builds the consent URL. forceConsent asks the provider to
	// show the consent screen again so it issues a new refresh token.
	AuthCodeURL(state string, forceConsent bool) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// GoogleOAuth implements OAuthProvider with golang.org/x/oauth2.
type GoogleOAuth struct {
	cfg *oauth2.Config
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint) *GoogleOAuth {
	return &GoogleOAuth{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{GmailSendScope},
		Endpoint:     endpoint,
	}}
}

func (g *GoogleOAuth) AuthCodeURL(state string, forceConsent bool) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if forceConsent {
		opts = append(opts, oauth2.ApprovalForce)
	}
	return g.cfg.AuthCodeURL(state, opts...)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.cfg.Exchange(ctx, code)
}

func (g *GoogleOAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return g.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}
