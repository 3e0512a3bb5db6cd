package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs startup validation of the full configuration, returning
// fatal errors alongside non-fatal warnings. Any returned error should halt
// startup with exit code 1; warnings are logged and startup continues.
func (c *Config) Validate() (errs []error, warns []string) {
	// Compile exercises every pubkey parse and the price union.
	rules, err := c.Compile()
	if err != nil {
		errs = append(errs, err)
	}

	if c.Validation.MaxSignatures == 0 {
		errs = append(errs, fmt.Errorf("validation.max_signatures must be > 0"))
	}

	if len(c.Validation.AllowedPrograms) == 0 {
		warns = append(warns, "validation.allowed_programs is empty: every transaction will be rejected")
	}

	if c.Kora.RateLimit == 0 {
		warns = append(warns, "kora.rate_limit is 0: rate limiting is disabled")
	}

	if c.Kora.MaxRequestBodySize <= 0 {
		errs = append(errs, fmt.Errorf("kora.max_request_body_size must be > 0"))
	}

	switch strings.ToLower(c.Validation.PriceSource) {
	case "jupiter", "mock":
	case "":
		errs = append(errs, fmt.Errorf("validation.price_source is required"))
	default:
		errs = append(errs, fmt.Errorf("validation.price_source: unknown source %q", c.Validation.PriceSource))
	}

	if rules != nil {
		if rules.Price.Type == PriceModelFree && c.Kora.PaymentAddress != "" {
			warns = append(warns, "kora.payment_address is set but the price model is free: payments will not be verified")
		}
		if rules.Price.Type != PriceModelFree && !rules.PaidTokensAll && len(rules.AllowedPaidTokens) == 0 {
			errs = append(errs, fmt.Errorf("validation.allowed_spl_paid_tokens must be %q or a non-empty allowlist when payment is required", "All"))
		}
	}

	if c.Kora.Cache.Enabled {
		if c.Kora.Cache.URL == "" {
			errs = append(errs, fmt.Errorf("kora.cache.url is required when the cache is enabled"))
		} else if err := validateRedisURL(c.Kora.Cache.URL, "kora.cache.url"); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Kora.UsageLimit.Enabled {
		if c.Kora.UsageLimit.CacheURL == "" {
			errs = append(errs, fmt.Errorf("kora.usage_limit.cache_url is required when the usage limiter is enabled"))
		} else if err := validateRedisURL(c.Kora.UsageLimit.CacheURL, "kora.usage_limit.cache_url"); err != nil {
			// A malformed store URL is only fatal when the limiter must
			// fail closed; with fallback the limiter degrades to allowing.
			if c.Kora.UsageLimit.FallbackIfUnavailable {
				warns = append(warns, err.Error()+" (fallback_if_unavailable is set, limiter will fail open)")
			} else {
				errs = append(errs, err)
			}
		}
		if c.Kora.UsageLimit.MaxTransactions == 0 {
			warns = append(warns, "kora.usage_limit.max_transactions is 0: the usage limiter is enabled but unbounded")
		}
	}

	if c.Kora.Auth.HMACSecret != "" && c.Kora.Auth.MaxTimestampAge <= 0 {
		errs = append(errs, fmt.Errorf("kora.auth.max_timestamp_age must be > 0 when hmac_secret is set"))
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port: invalid port %d", c.Metrics.Port))
	}

	return errs, warns
}

func validateRedisURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: malformed URL: %w", field, err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("%s: unsupported scheme %q (want redis:// or rediss://)", field, u.Scheme)
	}
	return nil
}
