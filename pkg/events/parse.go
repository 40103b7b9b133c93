package events

import (
	"bytes"
	"io"
	"net/http"

	"github.com/cloudevents/sdk-go/v2/event"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
)

// maxBodyBytes caps inbound event bodies. Alert payloads are small; anything
// past this is rejected rather than buffered.
const maxBodyBytes = 1 << 20

// FromHTTPRequest parses a CloudEvent from an HTTP request in either binary
// or structured mode. It returns the raw body truncated to PayloadLogLimit
// so callers can log offending payloads on failure.
func FromHTTPRequest(r *http.Request) (*event.Event, string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, "", apperrors.New(apperrors.KindTransport, "events.parse", err)
	}
	truncated := Truncate(body)
	if len(body) > maxBodyBytes {
		return nil, truncated, apperrors.Newf(apperrors.KindParse, "events.parse",
			"event body exceeds %d bytes", maxBodyBytes)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	e, err := cehttp.NewEventFromHTTPRequest(r)
	if err != nil {
		return nil, truncated, apperrors.New(apperrors.KindParse, "events.parse", err)
	}
	if e.ID() == "" || e.Type() == "" || e.Source() == "" {
		return nil, truncated, apperrors.Newf(apperrors.KindParse, "events.parse",
			"missing required attributes: id=%q type=%q source=%q", e.ID(), e.Type(), e.Source())
	}

	return e, truncated, nil
}

// Data decodes the event payload into a generic map.
func Data(e *event.Event) (map[string]any, error) {
	payload := make(map[string]any)
	if len(e.Data()) == 0 {
		return payload, nil
	}
	if err := e.DataAs(&payload); err != nil {
		return nil, apperrors.New(apperrors.KindParse, "events.data", err)
	}
	return payload, nil
}

// Truncate bounds a payload for logging.
func Truncate(b []byte) string {
	if len(b) <= PayloadLogLimit {
		return string(b)
	}
	return string(b[:PayloadLogLimit])
}
