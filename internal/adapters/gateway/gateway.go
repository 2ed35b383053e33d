// Package gateway wraps external calls with a per-attempt timeout and
// bounded retries with exponential backoff.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// Policy bounds one logical call.
type Policy struct {
	MaxRetries   int           // additional attempts after the first
	InitialDelay time.Duration // doubled after every failed attempt
	Timeout      time.Duration // per attempt
}

// DefaultPolicy suits short request/response calls.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, InitialDelay: time.Second, Timeout: 30 * time.Second}
}

// BulkPolicy suits long-running rebuild or import calls.
func BulkPolicy() Policy {
	return Policy{MaxRetries: 1, InitialDelay: 5 * time.Second, Timeout: 10 * time.Minute}
}

// Request describes one JSON call. A nil Policy uses the gateway default.
type Request struct {
	Method   string // defaults to POST
	Endpoint string
	Payload  any
	Headers  map[string]string
	Policy   *Policy
}

// Gateway executes external calls under a retry policy.
type Gateway struct {
	client *http.Client
	policy Policy
	logger hclog.Logger
	tracer trace.Tracer
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway. Zero policy fields take DefaultPolicy values.
func New(policy Policy, logger hclog.Logger) *Gateway {
	def := DefaultPolicy()
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = def.InitialDelay
	}
	if policy.Timeout <= 0 {
		policy.Timeout = def.Timeout
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Gateway{
		// Deadlines come from the per-attempt context.
		client: &http.Client{},
		policy: policy,
		logger: logger,
		tracer: otel.Tracer("tablerag/gateway"),
		sleep:  sleepContext,
	}
}

// Policy returns the gateway's default policy.
func (g *Gateway) Policy() Policy {
	return g.policy
}

// Do runs fn until it succeeds or p.MaxRetries+1 attempts have failed.
// Each attempt gets its own timeout. On exhaustion the returned error
// wraps ports.ErrNoResult.
func (g *Gateway) Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		p.Timeout = g.policy.Timeout
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = g.policy.InitialDelay
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	delay := p.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrNoResult, err)
		}

		lastErr = g.attempt(ctx, p.Timeout, attempt, fn)
		if lastErr == nil {
			return nil
		}

		g.logger.Warn("external call failed",
			"attempt", attempt+1,
			"max_attempts", p.MaxRetries+1,
			"error", lastErr)

		if attempt == p.MaxRetries {
			break
		}
		if err := g.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrNoResult, err)
		}
		delay *= 2
	}

	g.logger.Error("external call gave up", "attempts", p.MaxRetries+1, "error", lastErr)
	return fmt.Errorf("%w: %v", ports.ErrNoResult, lastErr)
}

func (g *Gateway) attempt(ctx context.Context, timeout time.Duration, n int, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attemptCtx, span := g.tracer.Start(attemptCtx, "gateway.attempt",
		trace.WithAttributes(attribute.Int("attempt", n+1)))
	defer span.End()

	err := fn(attemptCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Call posts req.Payload as JSON and decodes the response into out.
// validate, when set, rejects responses missing expected fields, which
// counts as a failed attempt. Call returns false once every attempt has
// failed; callers treat that as "no result".
func (g *Gateway) Call(ctx context.Context, req Request, out any, validate func() error) bool {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		g.logger.Error("encoding request payload", "endpoint", req.Endpoint, "error", err)
		return false
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	p := g.policy
	if req.Policy != nil {
		p = *req.Policy
	}

	err = g.Do(ctx, p, func(ctx context.Context) error {
		var reader io.Reader
		if method != http.MethodGet {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, req.Endpoint, reader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := g.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("calling %s: %w", req.Endpoint, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%s returned status %d", req.Endpoint, resp.StatusCode)
		}

		if out != nil {
			reset(out)
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
		}
		if validate != nil {
			return validate()
		}
		return nil
	})
	return err == nil
}

// reset zeroes the value out points to so a retry never sees stale fields.
func reset(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
