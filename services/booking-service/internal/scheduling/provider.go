package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/salud-online/sos/libs/schedule"
)

// ErrProviderNotFound reports that the clinic has no provider with the
// requested id.
var ErrProviderNotFound = errors.New("provider not found")

// Provider resolves a care provider's weekly shift schedule. The default
// implementation calls clinic-service over HTTP; builds with generated
// protobuf stubs can use the gRPC client instead.
type Provider interface {
	WeekSchedule(ctx context.Context, providerID string) (*schedule.WeekSchedule, error)
}

type HTTPProvider struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	ttl   time.Duration
	cache map[string]cachedSchedule
}

type cachedSchedule struct {
	week    *schedule.WeekSchedule
	expires time.Time
}

func NewHTTPProvider(baseURL string, cacheTTL time.Duration) *HTTPProvider {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 3 * time.Second},
		ttl:     cacheTTL,
		cache:   map[string]cachedSchedule{},
	}
}

func (p *HTTPProvider) WeekSchedule(ctx context.Context, providerID string) (*schedule.WeekSchedule, error) {
	p.mu.Lock()
	if entry, ok := p.cache[providerID]; ok && time.Now().Before(entry.expires) {
		p.mu.Unlock()
		return entry.week, nil
	}
	p.mu.Unlock()

	endpoint := p.baseURL + "/api/v1/providers/" + url.PathEscape(providerID) + "/schedule"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrProviderNotFound
	default:
		return nil, fmt.Errorf("clinic schedule endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var payload struct {
		Shifts string `json:"shifts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	week, err := schedule.ParseWeekSchedule(payload.Shifts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[providerID] = cachedSchedule{week: week, expires: time.Now().Add(p.ttl)}
	p.mu.Unlock()
	return week, nil
}
