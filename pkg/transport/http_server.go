package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/logger"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/security"
	"github.com/nickmkk/Platibus/pkg/subscription"
)

// HttpResourceRequest is a host-agnostic view of an inbound HTTP request:
// resource handlers depend on this instead of *http.Request so the same
// handler can be mounted behind net/http, a framework adapter, or a test
// driver without change.
type HttpResourceRequest struct {
	Context context.Context
	Method  string
	Path    string
	Query   map[string][]string
	Headers message.Headers
	Body    []byte
}

// HttpResourceResponse is a resource handler's host-agnostic reply.
type HttpResourceResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

func textResponse(status int, body string) HttpResourceResponse {
	return HttpResourceResponse{Status: status, Body: []byte(body)}
}

// MessageResource implements POST /message/{messageId}: the wire endpoint
// a sending bus calls to hand off a single message for local delivery.
type MessageResource struct {
	bus   *Bus
	tokens security.TokenService
}

func NewMessageResource(bus *Bus, tokens security.TokenService) *MessageResource {
	return &MessageResource{bus: bus, tokens: tokens}
}

func (h *MessageResource) Handle(req HttpResourceRequest) HttpResourceResponse {
	if req.Method != http.MethodPost {
		return textResponse(http.StatusMethodNotAllowed, "method not allowed")
	}

	msg := message.New(req.Headers, req.Body)
	if msg.MessageId() == "" {
		return textResponse(http.StatusBadRequest, "missing "+message.HeaderMessageId)
	}

	token, _ := msg.Headers().Get(message.HeaderSecurityToken)
	principal, err := h.tokens.Validate(req.Context, token)
	if err != nil {
		return textResponse(http.StatusUnauthorized, "invalid security token")
	}

	err = h.bus.HandleIncoming(req.Context, msg, principal)
	if err == nil {
		return HttpResourceResponse{Status: http.StatusAccepted}
	}

	switch errors.Code(err) {
	case errors.CodeUnauthenticated:
		return textResponse(http.StatusUnauthorized, err.Error())
	case errors.CodeInvalidArgument:
		return textResponse(http.StatusBadRequest, err.Error())
	default:
		// A handler that returns a plain application error means "not
		// acknowledged", which the wire protocol reports as 422 so the
		// sender's delivery attempt is retried rather than treated as
		// a transport failure.
		return textResponse(http.StatusUnprocessableEntity, err.Error())
	}
}

// SubscriberResource implements POST and DELETE /topic/{topic}/subscriber,
// the subscribe/renew and unsubscribe wire endpoints.
type SubscriberResource struct {
	registry subscription.Registry
}

func NewSubscriberResource(registry subscription.Registry) *SubscriberResource {
	return &SubscriberResource{registry: registry}
}

func (h *SubscriberResource) Handle(topic string, req HttpResourceRequest) HttpResourceResponse {
	uri := firstQueryValue(req.Query, "uri")
	if uri == "" {
		return textResponse(http.StatusBadRequest, "missing uri parameter")
	}

	switch req.Method {
	case http.MethodPost:
		ttl := time.Duration(0)
		if raw := firstQueryValue(req.Query, "ttl"); raw != "" {
			seconds, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return textResponse(http.StatusBadRequest, "invalid ttl parameter")
			}
			ttl = time.Duration(seconds) * time.Second
		}
		if err := h.registry.AddSubscription(req.Context, topic, uri, ttl); err != nil {
			return textResponse(http.StatusInternalServerError, err.Error())
		}
		return HttpResourceResponse{Status: http.StatusAccepted}
	case http.MethodDelete:
		if err := h.registry.RemoveSubscription(req.Context, topic, uri); err != nil {
			return textResponse(http.StatusInternalServerError, err.Error())
		}
		return HttpResourceResponse{Status: http.StatusOK}
	default:
		return textResponse(http.StatusMethodNotAllowed, "method not allowed")
	}
}

func firstQueryValue(query map[string][]string, name string) string {
	values, ok := query[name]
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

// Mux builds the wire protocol's net/http surface: RequestIDMiddleware
// stamps every request, then the two resource handlers own routing for
// their respective paths.
func Mux(messageResource *MessageResource, subscriber *SubscriberResource) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /message/{messageId}", func(w http.ResponseWriter, r *http.Request) {
		req, err := toResourceRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeResourceResponse(w, messageResource.Handle(req))
	})

	mux.HandleFunc("/topic/{topic}/subscriber", func(w http.ResponseWriter, r *http.Request) {
		req, err := toResourceRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeResourceResponse(w, subscriber.Handle(r.PathValue("topic"), req))
	})

	return RequestIDMiddleware(mux)
}

// RequestIDMiddleware ensures every request carries an X-Request-Id,
// generating one when the caller didn't supply one, so a delivery can be
// correlated across bus instances in logs.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-Id", requestID)
		}
		w.Header().Set("X-Request-Id", requestID)

		logger.L().DebugContext(r.Context(), "handling wire request", "method", r.Method, "path", r.URL.Path, "request_id", requestID)
		next.ServeHTTP(w, r)
	})
}

func toResourceRequest(r *http.Request) (HttpResourceRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return HttpResourceRequest{}, err
	}

	headers := message.NewHeaders()
	for name := range r.Header {
		headers.Set(name, r.Header.Get(name))
	}

	return HttpResourceRequest{
		Context: r.Context(),
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: headers,
		Body:    body,
	}, nil
}

func writeResourceResponse(w http.ResponseWriter, resp HttpResourceResponse) {
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
