// Package collector downloads daily price history from the Yahoo Finance
// chart API.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"quant-dashboard/internal/model"
)

// ErrSymbolNotFound is returned when Yahoo does not know the ticker.
var ErrSymbolNotFound = errors.New("symbol not found")

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Fetcher is what the service needs from a market-data source.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol, rng string) ([]model.PriceBar, error)
	FetchCompanyName(ctx context.Context, symbol string) (string, error)
}

// YahooFetcher implements Fetcher against the public chart endpoint.
type YahooFetcher struct {
	Client      *http.Client
	BaseURL     string
	MaxAttempts int
	RetryDelay  time.Duration

	// SymbolMap maps display tickers to Yahoo tickers (e.g. SPX -> ^GSPC).
	SymbolMap map[string]string
}

var _ Fetcher = (*YahooFetcher)(nil)

// NewYahooFetcher returns a fetcher, routed through proxyURL when set.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL:     defaultBaseURL,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		SymbolMap: map[string]string{
			"SPX":    "^GSPC",
			"SPX500": "^GSPC",
			"NDX":    "^NDX",
		},
	}
}

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

type chartMeta struct {
	Symbol     string `json:"symbol"`
	LongName   string `json:"longName"`
	ShortName  string `json:"shortName"`
	GMTOffset  int64  `json:"gmtoffset"`
	ExchangeTZ string `json:"exchangeTimezoneName"`
}

// chartResponse mirrors /v8/finance/chart; quote arrays hold null on
// non-trading rows.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta       chartMeta `json:"meta"`
			Timestamp  []int64   `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, rng string) (*chartResponse, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s&includePrePost=false",
		strings.TrimRight(f.BaseURL, "/"), url.PathEscape(f.yahooSymbol(symbol)), url.QueryEscape(rng))

	var chart chartResponse
	err := retryWithBackoff(ctx, "chart "+symbol, f.MaxAttempts, f.RetryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return permanent{err}
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := f.Client.Do(req)
		if err != nil {
			return fmt.Errorf("yahoo fetch: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return fmt.Errorf("yahoo read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return permanent{fmt.Errorf("yahoo %s: %w", symbol, ErrSymbolNotFound)}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("yahoo: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return permanent{fmt.Errorf("yahoo: status %d, body: %.200s", resp.StatusCode, body)}
		}

		chart = chartResponse{}
		if err := json.Unmarshal(body, &chart); err != nil {
			return permanent{fmt.Errorf("yahoo decode: %w", err)}
		}
		if e := chart.Chart.Error; e != nil {
			if strings.EqualFold(e.Code, "Not Found") {
				return permanent{fmt.Errorf("yahoo %s: %w", symbol, ErrSymbolNotFound)}
			}
			return permanent{fmt.Errorf("yahoo api error: %s", e.Description)}
		}
		if len(chart.Chart.Result) == 0 {
			return permanent{fmt.Errorf("yahoo %s: %w", symbol, ErrSymbolNotFound)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &chart, nil
}

// FetchDailyBars downloads daily bars for rng (e.g. "1y", "max"). Day keys are
// in the exchange's local calendar; rows with a null price are skipped.
func (f *YahooFetcher) FetchDailyBars(ctx context.Context, symbol, rng string) ([]model.PriceBar, error) {
	if rng == "" {
		rng = "max"
	}
	chart, err := f.fetchChart(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return []model.PriceBar{}, nil
	}
	quote := result.Indicators.Quote[0]
	offset := result.Meta.GMTOffset

	bars := make([]model.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue
		}
		vol := 0.0
		if v := at(quote.Volume, i); v != nil {
			vol = *v
		}
		bars = append(bars, model.PriceBar{
			Time:   time.Unix(ts+offset, 0).UTC().Format(model.DayLayout),
			Open:   *o,
			High:   *h,
			Low:    *l,
			Close:  *c,
			Volume: vol,
		})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	return bars, nil
}

// FetchCompanyName returns the long (or short) name from the chart metadata,
// falling back to the symbol.
func (f *YahooFetcher) FetchCompanyName(ctx context.Context, symbol string) (string, error) {
	chart, err := f.fetchChart(ctx, symbol, "5d")
	if err != nil {
		return "", err
	}
	meta := chart.Chart.Result[0].Meta
	switch {
	case meta.LongName != "":
		return meta.LongName, nil
	case meta.ShortName != "":
		return meta.ShortName, nil
	default:
		return symbol, nil
	}
}

func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}
