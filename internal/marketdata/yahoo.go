package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

// priceScale is the number of decimals kept from provider prices, so that
// repeated fetches of an unchanged bar compare equal.
const priceScale = 4

// YahooFetcher implements Fetcher using the Yahoo Finance chart API
type YahooFetcher struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher. Without proxyURL the
// environment proxy settings apply; config.Validate rejects malformed values.
func NewYahooFetcher(baseURL string, timeout time.Duration, proxyURL string) *YahooFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil && u.Host != "" {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider name
func (f *YahooFetcher) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Latest returns the most recent trading day for symbol
func (f *YahooFetcher) Latest(ctx context.Context, symbol string) ([]models.Quote, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "1d")

	quotes, err := f.fetchChart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}
	if len(quotes) > 1 {
		quotes = quotes[len(quotes)-1:]
	}
	return quotes, nil
}

// History returns daily quotes with start <= date < end
func (f *YahooFetcher) History(ctx context.Context, symbol string, start, end time.Time) ([]models.Quote, error) {
	start, end = models.Day(start), models.Day(end)
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range for %s: start %s is not before end %s",
			symbol, start.Format(models.DateLayout), end.Format(models.DateLayout))
	}

	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("events", "history")
	params.Set("includeAdjustedClose", "true")
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))

	quotes, err := f.fetchChart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	filtered := quotes[:0]
	for _, q := range quotes {
		if !q.Date.Before(start) && q.Date.Before(end) {
			filtered = append(filtered, q)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrNoData)
	}
	return filtered, nil
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, params url.Values) ([]models.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)

	// The provider reports unknown symbols as a 404 with an error payload
	if decodeErr == nil && chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("yahoo %s: %w: %s", symbol, ErrSymbolNotFound, chart.Chart.Error.Description)
		}
		return nil, fmt.Errorf("yahoo api error for %s: %s", symbol, chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s: status %d", symbol, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("yahoo decode: %w", decodeErr)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrNoData)
	}

	quotes := toQuotes(symbol, chart.Chart.Result[0])
	if len(quotes) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrNoData)
	}
	return quotes, nil
}

func toQuotes(requested string, result chartResult) []models.Quote {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	symbol := result.Meta.Symbol
	if symbol == "" {
		symbol = requested
	}
	loc := time.FixedZone("exchange", result.Meta.GMTOffset)
	bars := result.Indicators.Quote[0]

	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	quotes := make([]models.Quote, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open, high, low, cls := at(bars.Open, i), at(bars.High, i), at(bars.Low, i), at(bars.Close, i)
		if open == nil || high == nil || low == nil || cls == nil {
			continue // holidays and halted sessions come back as null bars
		}

		q := models.Quote{
			Date:   models.Day(time.Unix(ts, 0).In(loc)),
			Symbol: symbol,
			Open:   price(*open),
			High:   price(*high),
			Low:    price(*low),
			Close:  price(*cls),
		}
		if v := at(bars.Volume, i); v != nil {
			q.Volume = int64(*v)
		}
		if a := at(adj, i); a != nil {
			q.AdjustedClose = decimal.NewNullDecimal(price(*a))
		}
		quotes = append(quotes, q)
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Date.Before(quotes[j].Date) })
	return quotes
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(priceScale)
}
