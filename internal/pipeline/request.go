package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/vyrodovalexey/omnigw/internal/auth/token"
)

// Request is one gateway call.
type Request struct {
	Endpoint string          `json:"endpoint"`
	Method   string          `json:"method"`
	Data     json.RawMessage `json:"data,omitempty"`

	// Token is the bearer token presented by the caller, if any.
	Token string `json:"-"`
	// ClientIP is the caller's address as seen by the transport.
	ClientIP string `json:"-"`
	// RequestID is assigned by the dispatcher.
	RequestID string `json:"-"`
	// Claims is set by the auth stage for authenticated requests.
	Claims *token.Claims `json:"-"`

	decodeOnce sync.Once
	payload    any
	decodeErr  error
}

// Payload returns Data decoded into maps, slices and scalars. It is
// decoded once and shared by every stage.
func (r *Request) Payload() (any, error) {
	r.decodeOnce.Do(func() {
		if len(r.Data) == 0 {
			return
		}
		if err := sonic.Unmarshal(r.Data, &r.payload); err != nil {
			r.decodeErr = fmt.Errorf("decode request data: %w", err)
		}
	})
	return r.payload, r.decodeErr
}

// Envelope is the response body for every request.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	RequestID string          `json:"request_id"`
}

// Success wraps data in a success envelope.
func Success(requestID string, data json.RawMessage) Envelope {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Envelope{Success: true, Data: data, RequestID: requestID}
}

// Failure wraps message in an error envelope.
func Failure(requestID, message string) Envelope {
	return Envelope{Error: &message, RequestID: requestID}
}

// Response is the outcome of Dispatch.
type Response struct {
	Status   int
	Envelope Envelope
	// RetryAfter is set on rate limit rejections.
	RetryAfter time.Duration
}
