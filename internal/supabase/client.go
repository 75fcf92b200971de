package supabase

import (
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
	"staging-studio-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// LookupEmail asks Supabase Auth for the email behind an access token. It is
// used for tokens that do not carry an email claim.
func (c *Client) LookupEmail(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := c.Supabase.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if strings.TrimSpace(resp.Email) == "" {
		return "", fmt.Errorf("user %s has no email", resp.ID)
	}
	return resp.Email, nil
}
