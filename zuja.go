// Package zujapayments assembles the payment flow from configuration: it is
// the single entry point UI event handlers are expected to use. Everything
// underneath (executor, credential provider, clients, orchestrator) is wired
// here from a *config.Config.
package zujapayments

import (
	"zuja-payments/config"
	"zuja-payments/internal/auth"
	"zuja-payments/internal/payments"
	"zuja-payments/internal/request"
	"zuja-payments/pkg/logger"
)

// Core is the assembled payment library. Tokens is exposed so the login and
// logout handlers can install and clear the session credential.
type Core struct {
	Tokens *auth.RefreshTokenSource
	Client *payments.Client
	Flow   *payments.Flow
}

// New builds the payment core from configuration: initialises the global
// logger, derives the executor's retry policy from the retry knobs, and
// shares one logging HTTP client between the executor and the credential
// provider.
func New(cfg *config.Config) (*Core, error) {
	if err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	}); err != nil {
		return nil, err
	}
	log := logger.Log

	httpClient := request.NewHTTPClient(cfg.HTTPTimeout, log)
	tokens := auth.NewRefreshTokenSource(cfg.APIBaseURL, httpClient, log)

	policy := request.DefaultRetryPolicy()
	policy.MaxRetries = cfg.RetryMaxAttempts
	policy.BaseDelay = cfg.RetryBaseDelay

	exec := request.NewExecutor(cfg.APIBaseURL, tokens,
		request.WithHTTPClient(httpClient),
		request.WithRetryPolicy(policy),
		request.WithLogger(log),
	)

	client := payments.NewClient(exec, log)
	return &Core{
		Tokens: tokens,
		Client: client,
		Flow:   payments.NewFlow(client, log),
	}, nil
}
