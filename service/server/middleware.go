package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/metrics"
)

// livenessMiddleware rewrites GET /liveness into the liveness RPC method so
// load balancers can probe without crafting a JSON-RPC body.
func livenessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/liveness" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"jsonrpc":"2.0","result":"ok"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies a global token bucket across all clients.
func rateLimitMiddleware(limiter *rate.Limiter, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow() {
			if m != nil {
				m.RecordRateLimitRejection()
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, x-hmac-signature, x-timestamp")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authorize applies the API-key and HMAC layers to a request whose body has
// already been read. The liveness method bypasses both. An empty configured
// value disables that layer.
func authorize(auth config.AuthConfig, method string, header http.Header, body []byte, now time.Time) bool {
	if method == "liveness" {
		return true
	}

	if auth.APIKey != "" {
		provided := header.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(auth.APIKey)) != 1 {
			return false
		}
	}

	if auth.HMACSecret != "" {
		if !hmacValid(auth, header, body, now) {
			return false
		}
	}

	return true
}

// hmacValid checks x-timestamp freshness and the hex HMAC-SHA256 of
// timestamp||body under the shared secret.
func hmacValid(auth config.AuthConfig, header http.Header, body []byte, now time.Time) bool {
	tsHeader := header.Get("x-timestamp")
	sigHeader := header.Get("x-hmac-signature")
	if tsHeader == "" || sigHeader == "" {
		return false
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > auth.MaxTimestampAge {
		return false
	}

	mac := hmac.New(sha256.New, []byte(auth.HMACSecret))
	mac.Write([]byte(tsHeader))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHeader))
}
