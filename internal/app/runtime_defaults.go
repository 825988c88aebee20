package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/groupchoice/pkg/crypto"
)

const jwtSecretBytes = 48

// SMTP ports used when the configuration leaves smtp.port unset.
const (
	smtpImplicitTLSPort = 465
	smtpSubmissionPort  = 587
)

// ApplyRuntimeDefaults fills values that can be derived or generated at
// start-up. The returned map names every key it touched so the caller can log
// them without printing secrets.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	applied := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		applied["auth.jwt.secret"] = true
	}

	smtp := &cfg.Email.SMTP
	if smtp.Enabled {
		if strings.TrimSpace(smtp.From) == "" && smtp.Username != "" {
			smtp.From = smtp.Username
			applied["email.smtp.from"] = true
		}
		if smtp.Port == 0 {
			smtp.Port = smtpSubmissionPort
			if smtp.UseTLS {
				smtp.Port = smtpImplicitTLSPort
			}
			applied["email.smtp.port"] = true
		}
	}

	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.Surveys.FrontendURL), "/"); trimmed != cfg.Surveys.FrontendURL {
		cfg.Surveys.FrontendURL = trimmed
		applied["surveys.frontend_url"] = true
	}

	return applied, nil
}
