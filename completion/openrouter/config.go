package openrouter

import (
	"vermithor/config"
)

// NewFromConfig builds the client described by the openrouter section, with
// the credential chain resolved on every request.
func NewFromConfig(cfg *config.Config) *Service {
	opts := []Option{
		WithAppIdentity(cfg.OpenRouter.Referer, cfg.OpenRouter.Title),
	}
	if cfg.OpenRouter.ResponseHeaderTimeout > 0 {
		opts = append(opts, WithResponseHeaderTimeout(cfg.OpenRouter.ResponseHeaderTimeout))
	}
	return New(cfg.OpenRouter.Endpoint, cfg.Credential(), opts...)
}
