package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prestec-labs/floortrack/internal/domain"
)

const (
	countPath = "/api/picodata"
	resetPath = "/update"

	defaultTimeout  = 5 * time.Second
	maxResponseSize = 64 << 10
)

// CounterClient talks to the physical piece counter wired to a machine.
// A device that cannot be reached within the timeout yields an unknown
// count; the caller decides what unknown means, never this client.
type CounterClient struct {
	registry *Registry
	http     *http.Client
	logger   *slog.Logger
}

func NewCounterClient(registry *Registry, timeout time.Duration, logger *slog.Logger) *CounterClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CounterClient{
		registry: registry,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Read fetches the device's running count. An unknown machine id is the only
// error path; transport failures, bad statuses and unparsable bodies degrade
// to an unknown count so the operator's action is never blocked.
func (c *CounterClient) Read(ctx context.Context, machineID string) (domain.Count, error) {
	address, err := c.registry.Resolve(machineID)
	if err != nil {
		return domain.UnknownCount(), err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+countPath, nil)
	if err != nil {
		return domain.UnknownCount(), fmt.Errorf("build count request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("counter unreachable", "machine", machineID, "address", address, "error", err)
		return domain.UnknownCount(), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("counter rejected read", "machine", machineID, "address", address, "status", resp.StatusCode)
		return domain.UnknownCount(), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Warn("counter body unreadable", "machine", machineID, "address", address, "error", err)
		return domain.UnknownCount(), nil
	}
	value, ok := parseCountBody(body)
	if !ok {
		c.logger.Warn("counter body unparsable", "machine", machineID, "address", address)
		return domain.UnknownCount(), nil
	}
	return domain.KnownCount(value), nil
}

// Reset zeroes the device's running count. It touches no other device
// register. Failures are reported to the caller and nothing is rolled back;
// an unknown machine id is distinguishable via ErrUnknownMachine.
func (c *CounterClient) Reset(ctx context.Context, machineID string) error {
	address, err := c.registry.Resolve(machineID)
	if err != nil {
		return err
	}
	form := url.Values{"count_value": {"0"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+resetPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build reset request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reset counter %s: %w", machineID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("reset counter %s: unexpected status %d", machineID, resp.StatusCode)
	}
	return nil
}

// parseCountBody accepts either a JSON object carrying count_value (numeric
// or numeric-string) or a bare integer body. Anything else is unreadable.
func parseCountBody(body []byte) (int64, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return 0, false
	}
	if strings.HasPrefix(trimmed, "{") {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return 0, false
		}
		raw, ok := payload["count_value"]
		if !ok {
			return 0, false
		}
		var asNumber json.Number
		if err := json.Unmarshal(raw, &asNumber); err == nil {
			if value, err := asNumber.Int64(); err == nil {
				return value, true
			}
			return 0, false
		}
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			value, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64)
			if err != nil {
				return 0, false
			}
			return value, true
		}
		return 0, false
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
