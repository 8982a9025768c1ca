package strapi

import (
	"context"
	"net/http"

	"lifedesk/internal/core"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login exchanges credentials for a token. It is always sent unauthenticated.
func (c *Client) Login(ctx context.Context, identifier, password string) (core.AuthResult, error) {
	var res core.AuthResult
	err := c.WithToken("").Do(ctx, http.MethodPost, "/auth/local", nil,
		loginRequest{Identifier: identifier, Password: password}, &res)
	return res, err
}

// Me returns the profile of the client's token.
func (c *Client) Me(ctx context.Context) (core.User, error) {
	var u core.User
	err := c.Do(ctx, http.MethodGet, "/users/me", nil, nil, &u)
	return u, err
}
