package app

import (
	"github.com/charlesng35/groupchoice/internal/auth"
	"github.com/charlesng35/groupchoice/internal/database"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// LocalAuthConfig converts AuthConfig into password sign-in parameters. Zero
// values fall back to the authenticator defaults.
func (c AuthConfig) LocalAuthConfig() auth.LocalConfig {
	return auth.LocalConfig{
		LockoutThreshold: c.Local.LockoutThreshold,
		LockoutDuration:  c.Local.LockoutDuration,
	}
}

// SeedOptions converts the bootstrap admin settings for the database seeder.
func (c AuthConfig) SeedOptions() database.SeedOptions {
	return database.SeedOptions{
		AdminUsername: c.Admin.Username,
		AdminEmail:    c.Admin.Email,
		AdminPassword: c.Admin.Password,
	}
}
