package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/metrics"
)

const (
	jupiterLiteBaseURL = "https://lite-api.jup.ag"
	jupiterProBaseURL  = "https://api.jup.ag"
	jupiterPricePath   = "/price/v3"
)

// Sanity bounds on USD prices returned by the aggregator. Anything outside
// this range is treated as a bad reading rather than propagated into fee
// math.
const (
	minUSDPrice = 1e-9
	maxUSDPrice = 1e9
)

// Jupiter queries the Jupiter price aggregator. When an API key is
// configured the pro endpoint is tried first; an HTTP 429 from pro falls
// back to the lite endpoint, other failures propagate.
type Jupiter struct {
	httpClient *http.Client
	apiKey     string
	liteURL    string
	proURL     string
	metrics    *metrics.Metrics
}

// NewJupiter creates a Jupiter source. apiKey may be empty (lite only);
// metrics may be nil.
func NewJupiter(apiKey string, m *metrics.Metrics) *Jupiter {
	return &Jupiter{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		liteURL:    jupiterLiteBaseURL,
		proURL:     jupiterProBaseURL,
		metrics:    m,
	}
}

func (j *Jupiter) Name() string { return "jupiter" }

type jupiterPrice struct {
	USDPrice    float64 `json:"usdPrice"`
	BlockID     uint64  `json:"blockId"`
	Decimals    uint8   `json:"decimals"`
	PriceChange float64 `json:"priceChange24h"`
}

// GetPrices fetches USD prices for the native mint plus every requested
// mint in one call and converts each to native units.
func (j *Jupiter) GetPrices(ctx context.Context, mints []solanago.PublicKey) (map[solanago.PublicKey]Price, error) {
	ids := make([]string, 0, len(mints)+1)
	ids = append(ids, NativeMint.String())
	for _, m := range mints {
		if !m.Equals(NativeMint) {
			ids = append(ids, m.String())
		}
	}

	raw, err := j.fetch(ctx, ids)
	if err != nil {
		j.record("error")
		return nil, err
	}
	j.record("success")

	nativeEntry, ok := raw[NativeMint.String()]
	if !ok {
		return nil, kerr.New(kerr.FeeEstimationFailed, "oracle returned no price for the native mint")
	}
	if err := checkUSDPrice(NativeMint.String(), nativeEntry.USDPrice); err != nil {
		return nil, err
	}
	nativeUSD := decimal.NewFromFloat(nativeEntry.USDPrice)

	out := make(map[solanago.PublicKey]Price, len(mints))
	for _, mint := range mints {
		if mint.Equals(NativeMint) {
			out[mint] = Price{PriceInNative: decimal.NewFromInt(1), Confidence: 1, Source: j.Name()}
			continue
		}
		entry, ok := raw[mint.String()]
		if !ok {
			continue
		}
		if err := checkUSDPrice(mint.String(), entry.USDPrice); err != nil {
			return nil, err
		}
		out[mint] = Price{
			PriceInNative: decimal.NewFromFloat(entry.USDPrice).Div(nativeUSD),
			Confidence:    1,
			Source:        j.Name(),
		}
	}
	return out, nil
}

// fetch tries the pro endpoint when a key is configured, degrading to lite
// on rate limiting.
func (j *Jupiter) fetch(ctx context.Context, ids []string) (map[string]jupiterPrice, error) {
	if j.apiKey != "" {
		prices, err := j.fetchFrom(ctx, j.proURL, ids, true)
		if err == nil {
			return prices, nil
		}
		if !kerr.IsKind(err, kerr.RateLimitExceeded) {
			return nil, err
		}
	}
	return j.fetchFrom(ctx, j.liteURL, ids, false)
}

func (j *Jupiter) fetchFrom(ctx context.Context, base string, ids []string, pro bool) (map[string]jupiterPrice, error) {
	u := base + jupiterPricePath + "?ids=" + url.QueryEscape(strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, kerr.Wrap(kerr.FeeEstimationFailed, "failed to build oracle request", err)
	}
	if pro {
		req.Header.Set("x-api-key", j.apiKey)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, kerr.Wrap(kerr.FeeEstimationFailed, "oracle request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, kerr.New(kerr.RateLimitExceeded, "oracle rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, kerr.Newf(kerr.FeeEstimationFailed, "oracle returned status %d", resp.StatusCode)
	}

	var prices map[string]jupiterPrice
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, kerr.Wrap(kerr.FeeEstimationFailed, "failed to decode oracle response", err)
	}
	return prices, nil
}

func checkUSDPrice(mint string, usd float64) error {
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return kerr.Newf(kerr.FeeEstimationFailed, "oracle price for %s is not finite", mint)
	}
	if usd < minUSDPrice || usd > maxUSDPrice {
		return kerr.New(kerr.FeeEstimationFailed,
			fmt.Sprintf("oracle price for %s (%g USD) is outside sanity bounds", mint, usd))
	}
	return nil
}

func (j *Jupiter) record(status string) {
	if j.metrics != nil {
		j.metrics.RecordOracleRequest(j.Name(), status)
	}
}
