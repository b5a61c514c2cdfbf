package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/velora/internal/ir"
)

const (
	upstashPrefix = "velora:"

	// DefaultRemoteTTL bounds how long shared records live in Upstash.
	DefaultRemoteTTL = 30 * 24 * time.Hour
)

// UpstashTier is the shared remote tier, spoken over the Upstash Redis REST
// API. Each command is a JSON array POSTed to the database URL.
type UpstashTier struct {
	url    string
	token  string
	client *http.Client
	ttl    time.Duration
}

// UpstashOption configures an UpstashTier.
type UpstashOption func(*UpstashTier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) UpstashOption {
	return func(u *UpstashTier) {
		u.client = c
	}
}

// WithRemoteTTL sets the key TTL used when a record has none of its own.
func WithRemoteTTL(ttl time.Duration) UpstashOption {
	return func(u *UpstashTier) {
		u.ttl = ttl
	}
}

// NewUpstashTier creates a tier for the database at url.
func NewUpstashTier(url, token string, opts ...UpstashOption) *UpstashTier {
	u := &UpstashTier{
		url:    strings.TrimRight(url, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    DefaultRemoteTTL,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Name implements Tier.
func (u *UpstashTier) Name() string {
	return "upstash"
}

// Ping checks connectivity and credentials.
func (u *UpstashTier) Ping(ctx context.Context) error {
	raw, err := u.command(ctx, "PING")
	if err != nil {
		return err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s != "PONG" {
		return fmt.Errorf("upstash: unexpected PING reply %s", raw)
	}
	return nil
}

// Get implements Tier.
func (u *UpstashTier) Get(ctx context.Context, key string) (ir.CacheRecord, bool, error) {
	raw, err := u.command(ctx, "GET", upstashPrefix+key)
	if err != nil {
		return ir.CacheRecord{}, false, err
	}
	if isNull(raw) {
		return ir.CacheRecord{}, false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ir.CacheRecord{}, false, fmt.Errorf("upstash GET %s: %w", key, err)
	}
	var rec ir.CacheRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return ir.CacheRecord{}, false, fmt.Errorf("upstash GET %s: decode record: %w", key, err)
	}
	return rec, true, nil
}

// Put implements Tier. SET NX keeps the first writer's record.
func (u *UpstashTier) Put(ctx context.Context, rec ir.CacheRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}
	ttl := rec.TTL
	if ttl <= 0 {
		ttl = u.ttl
	}
	args := []any{"SET", upstashPrefix + rec.Key, string(val), "NX"}
	if secs := int64(ttl / time.Second); secs > 0 {
		args = append(args, "EX", secs)
	}
	_, err = u.command(ctx, args...)
	return err
}

type upstashReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (u *UpstashTier) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstash %v: %w", args[0], err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstash %v: %w", args[0], err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("upstash %v: read reply: %w", args[0], err)
	}
	var reply upstashReply
	if jsonErr := json.Unmarshal(data, &reply); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("upstash %v: decode reply: %w", args[0], jsonErr)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("upstash %v: %s", args[0], reply.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstash %v: %s", args[0], resp.Status)
	}
	return reply.Result, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

var errUpstashDisabled = errors.New("upstash: url and token are required")

// NewOptionalUpstash returns a tier when both url and token are set, or nil.
func NewOptionalUpstash(url, token string, opts ...UpstashOption) (*UpstashTier, error) {
	switch {
	case url == "" && token == "":
		return nil, nil
	case url == "" || token == "":
		return nil, errUpstashDisabled
	}
	return NewUpstashTier(url, token, opts...), nil
}
