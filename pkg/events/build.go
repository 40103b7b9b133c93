package events

import (
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/brunovlucena/homelab-sub000/pkg/apperrors"
)

// NewRemediationRequest builds the CloudEvent POSTed to a lambda function.
// The event id carries the workflow's correlation ID so the lambda can join
// its logs to the remediation trace.
func NewRemediationRequest(correlationID string, parameters map[string]any) (event.Event, error) {
	e := cloudevents.NewEvent()
	e.SetSpecVersion(SpecVersion)
	e.SetType(TypeRemediationRequest)
	e.SetSource(Source)
	e.SetID(correlationID)
	if err := e.SetData(cloudevents.ApplicationJSON, parameters); err != nil {
		return event.Event{}, apperrors.New(apperrors.KindParse, "events.build", err)
	}
	return e, nil
}
