package config

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/mexcsniper/internal/crypto"
)

// Credentials are the resolved MEXC API key pair.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// ResolveCredentials finds the exchange key pair. Values already in cfg win;
// SSM (when enabled and api is non-nil) fills what is missing; an encrypted
// key file is the last source for the secret.
func ResolveCredentials(ctx context.Context, cfg *Config, api ParameterAPI) (Credentials, error) {
	creds := Credentials{APIKey: cfg.MEXC.APIKey, SecretKey: cfg.MEXC.SecretKey}

	if cfg.SSM.Enabled && api != nil && (creds.APIKey == "" || creds.SecretKey == "") {
		key, secret, err := LoadSSMCredentials(ctx, api, cfg.SSM.Prefix)
		if err != nil {
			return Credentials{}, err
		}
		if creds.APIKey == "" {
			creds.APIKey = key
		}
		if creds.SecretKey == "" {
			creds.SecretKey = secret
		}
	}

	secret, err := crypto.LoadSecret(crypto.SecretSource{
		Raw:           creds.SecretKey,
		EncryptedPath: cfg.MEXC.EncryptedSecretPath,
		Password:      cfg.MEXC.KeyPassword,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("config: resolve secret key: %w", err)
	}
	creds.SecretKey = secret

	if creds.APIKey == "" {
		return Credentials{}, fmt.Errorf("config: mexc api key not configured")
	}
	return creds, nil
}

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or serving the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.MEXC.APIKey)
	redact(&out.MEXC.SecretKey)
	redact(&out.MEXC.KeyPassword)

	redact(&out.Dynamo.AccessKey)
	redact(&out.Dynamo.SecretKey)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Sniper.Owners = cloneStrings(cfg.Sniper.Owners)
	out.Feed.Symbols = cloneStrings(cfg.Feed.Symbols)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
