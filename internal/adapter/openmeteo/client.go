// Package openmeteo extracts hourly weather observations from the
// Open-Meteo forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/energitic/windfarm-etl/internal/dataset"
	"github.com/energitic/windfarm-etl/internal/observability"
)

const (
	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
	maxInterval     = 5 * time.Second
)

var (
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// hourlyVariables are the forecast series requested from the API. The
// response carries one parallel array per variable.
var hourlyVariables = []string{
	"temperature_2m",
	"relativehumidity_2m",
	"windspeed_10m",
	"pressure_msl",
}

// hourlyColumns maps each response array to its dataset column.
var hourlyColumns = map[string]string{
	"temperature_2m":      "temperature",
	"relativehumidity_2m": "humidity",
	"windspeed_10m":       "wind_speed",
	"pressure_msl":        "pressure",
}

// Client fetches hourly forecasts with retries, exponential backoff, and a
// circuit breaker. Only transient upstream failures (500, 502, 504) are
// retried; client errors surface immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		circuit: cb,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchHourly retrieves the hourly series for a coordinate and flattens the
// parallel arrays into one dataset row per timestamp.
func (c *Client) FetchHourly(ctx context.Context, lat, lon float64) (*dataset.Dataset, error) {
	params := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 4, 64)},
		"hourly":    hourlyVariables,
		"timezone":  {"UTC"},
	}

	body, err := c.get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}

	return flattenHourly(payload.Hourly)
}

// get executes the request with up to maxAttempts tries. Backoff doubles
// per attempt, capped at maxInterval.
func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 {
			delay := initialInterval * time.Duration(math.Pow(2, float64(attempt-1)))
			if delay > maxInterval {
				delay = maxInterval
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			c.logger.Debug("retrying weather request", "attempt", attempt+1)
		}

		body, retryable, err := c.once(ctx, fullURL)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("weather request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, fullURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, execErr := c.httpClient.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return data, nil
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w: status %d", errServerError, resp.StatusCode)
		default:
			return nil, fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, data)
		}
	})
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		// Network failures and transient upstream statuses are retryable;
		// anything else is a hard failure.
		retryable = errors.Is(err, errServerError) || isNetworkError(err)
		return nil, retryable, err
	}

	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	return result.([]byte), false, nil
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// flattenHourly turns the parallel arrays into rows. Array lengths must
// match the time axis; a missing series is skipped, a JSON null within a
// series becomes a null cell.
func flattenHourly(h hourly) (*dataset.Dataset, error) {
	if len(h.Time) == 0 {
		return nil, errors.New("forecast response has no hourly time axis")
	}

	series := map[string][]*float64{
		"temperature_2m":      h.Temperature,
		"relativehumidity_2m": h.Humidity,
		"windspeed_10m":       h.WindSpeed,
		"pressure_msl":        h.Pressure,
	}

	for name, values := range series {
		if values != nil && len(values) != len(h.Time) {
			return nil, fmt.Errorf("hourly series %s has %d values for %d timestamps", name, len(values), len(h.Time))
		}
	}

	// Columns are registered one by one so their order is stable: the time
	// axis first, then the series in request order.
	ds := dataset.New()
	for i, ts := range h.Time {
		ds.AppendRow(dataset.Row{})
		ds.Set(i, "ts_utc", dataset.Text(ts))
		for _, name := range hourlyVariables {
			values := series[name]
			if values == nil {
				continue
			}
			column := hourlyColumns[name]
			if values[i] == nil {
				ds.Set(i, column, dataset.Null())
			} else {
				ds.Set(i, column, dataset.Number(*values[i]))
			}
		}
	}
	return ds, nil
}

// Open-Meteo API response types.

type forecastResponse struct {
	Hourly hourly `json:"hourly"`
}

type hourly struct {
	Time        []string   `json:"time"`
	Temperature []*float64 `json:"temperature_2m"`
	Humidity    []*float64 `json:"relativehumidity_2m"`
	WindSpeed   []*float64 `json:"windspeed_10m"`
	Pressure    []*float64 `json:"pressure_msl"`
}
