package auth

import (
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf represents the credentials of an upstream HTTP API. A static Token
// (a Home Assistant long-lived access token or a Solcast API key) takes
// precedence over the client-credentials flow.
type Conf struct {
	Token        string `json:"token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURL      string `json:"auth_url"`
}

// Configured reports whether any credential is set.
func (c Conf) Configured() bool {
	return c.Token != "" || c.ClientID != ""
}

// Validate rejects a partial client-credentials setup.
func (c Conf) Validate() error {
	if c.Token != "" || c.ClientID == "" {
		return nil
	}
	if c.ClientSecret == "" || c.AuthURL == "" {
		return fmt.Errorf("auth: client_id requires client_secret and auth_url")
	}
	return nil
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
	}
}
