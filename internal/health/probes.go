package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Probes is the default Checker backed by the live Redis client and the
// discount service's health endpoint.
type Probes struct {
	Redis       redis.UniversalClient
	HTTP        *http.Client
	DiscountURL string
}

// PingRedis implements Checker.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return fmt.Errorf("redis not configured")
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(pingCtx).Err()
}

// PingDiscountService implements Checker.
func (p Probes) PingDiscountService(ctx context.Context, timeout time.Duration) error {
	if p.DiscountURL == "" {
		return fmt.Errorf("discount service not configured")
	}
	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	endpoint := strings.TrimRight(p.DiscountURL, "/") + "/healthz"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("discount service unhealthy: %s", resp.Status)
	}
	return nil
}
