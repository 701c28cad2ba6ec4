package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/resilience"
)

// otelTransport wraps the default transport so every outbound delivery and
// subscription request is correlated with the calling trace.
func otelTransport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}

// wireClients pools one *http.Client per (baseURI, credentials) pair so
// concurrent deliveries to the same destination share connections, and one
// circuit breaker per destination so a peer that is consistently failing
// gets fast-failed instead of hammered with retries that will all time out.
type wireClients struct {
	mu       sync.Mutex
	clients  map[string]*http.Client
	breakers map[string]*resilience.CircuitBreaker
}

func newWireClients() *wireClients {
	return &wireClients{
		clients:  make(map[string]*http.Client),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (w *wireClients) breaker(destination string) *resilience.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cb, ok := w.breakers[destination]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             destination,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})
	w.breakers[destination] = cb
	return cb
}

func (w *wireClients) get(baseURI string, creds *Credentials) *http.Client {
	key := baseURI
	if creds != nil {
		key += "|" + creds.Username
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.clients[key]; ok {
		return c
	}
	c := &http.Client{Transport: otelTransport()}
	w.clients[key] = c
	return c
}

// deliver POSTs msg to {destination}/message/{urlEncode(MessageId)}, one
// header per message header, Content-Type from the message, and classifies
// the response per §4.4 step 4/5.
func (w *wireClients) deliver(ctx context.Context, destination string, creds *Credentials, msg message.Message) error {
	target := destination + "/message/" + url.PathEscape(msg.MessageId())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(msg.Content()))
	if err != nil {
		return ErrInvalidRequest(err)
	}
	for _, name := range msg.Headers().Names() {
		v, _ := msg.Headers().Get(name)
		req.Header.Set(name, v)
	}
	if ct := msg.ContentType(); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if creds != nil {
		if creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		} else if creds.Username != "" {
			req.SetBasicAuth(creds.Username, creds.Password)
		}
	}

	client := w.get(destination, creds)
	cb := w.breaker(destination)

	err = cb.Execute(ctx, func(ctx context.Context) error {
		resp, doErr := client.Do(req)
		if doErr != nil {
			return classifyTransportError(doErr)
		}
		defer resp.Body.Close()
		return classifyStatus(resp.StatusCode)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return ErrTransportFailure(err)
	}
	return err
}

// sendSubscriptionRequest issues the subscribe/renew POST described in
// §4.4: POST {publisher}/topic/{urlEncode(topic)}/subscriber?uri=...&ttl=...
func (w *wireClients) sendSubscriptionRequest(ctx context.Context, publisher, topic, selfBaseURI string, ttlSeconds int64) error {
	target := publisher + "/topic/" + url.PathEscape(topic) + "/subscriber"
	q := url.Values{}
	q.Set("uri", selfBaseURI)
	if ttlSeconds > 0 {
		q.Set("ttl", strconv.FormatInt(ttlSeconds, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"?"+q.Encode(), nil)
	if err != nil {
		return ErrInvalidRequest(err)
	}

	client := w.get(publisher, nil)
	cb := w.breaker(publisher)

	err = cb.Execute(ctx, func(ctx context.Context) error {
		resp, doErr := client.Do(req)
		if doErr != nil {
			return classifyTransportError(doErr)
		}
		defer resp.Body.Close()
		return classifyStatus(resp.StatusCode)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return ErrTransportFailure(err)
	}
	return err
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrAccessDenied(nil)
	case status == http.StatusNotFound:
		return ErrResourceNotFound(nil)
	case status == http.StatusUnprocessableEntity:
		return ErrMessageNotAcked(nil)
	case status >= 400 && status < 500:
		return ErrInvalidRequest(nil)
	default:
		return ErrTransportFailure(nil)
	}
}

func classifyTransportError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrNameResolutionFailed(err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return ErrConnectionRefused(err)
		}
	}
	return ErrTransportFailure(err)
}

