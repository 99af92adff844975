package server

import (
	"encoding/json"

	"dealline/internal/domain"
)

type CreateCampaignRequest struct {
	ID   string `json:"id" example:"summer-launch"`
	Name string `json:"name,omitempty" example:"Summer Launch"`
}

type CreateEngagementRequest struct {
	CreatorID string `json:"creator_id" example:"creator-42"`
}

type TransitionRequest struct {
	Transition      string `json:"transition" enum:"accept,reject,start,submit,request_changes,approve,pay,cancel"`
	ExpectedVersion int64  `json:"expected_version" example:"3"`
	ContentRef      string `json:"content_ref,omitempty" example:"https://cdn.example.com/v/abc123"`
	AmountCents     int64  `json:"amount_cents,omitempty" example:"250000"`
	Notes           string `json:"notes,omitempty"`
}

type PaymentCallbackRequest struct {
	IntentID     string `json:"intent_id"`
	Status       string `json:"status" enum:"confirmed,failed"`
	ProcessorRef string `json:"processor_ref,omitempty"`
}

type EventResponse struct {
	ID           int64           `json:"id"`
	EngagementID string          `json:"engagement_id"`
	Transition   string          `json:"transition"`
	PriorState   string          `json:"prior_state,omitempty"`
	NewState     string          `json:"new_state"`
	Version      int64           `json:"version"`
	ActorID      string          `json:"actor_id"`
	TS           string          `json:"ts"`
	Payload      json.RawMessage `json:"payload"`
}

func eventResponse(e domain.TransitionEvent) EventResponse {
	payload := json.RawMessage([]byte("{}"))
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage([]byte(e.Payload))
	}
	return EventResponse{
		ID:           e.ID,
		EngagementID: e.EngagementID,
		Transition:   e.Transition,
		PriorState:   e.PriorState,
		NewState:     e.NewState,
		Version:      e.Version,
		ActorID:      e.ActorID,
		TS:           e.TS,
		Payload:      payload,
	}
}

func mapEvents(events []domain.TransitionEvent) []EventResponse {
	res := make([]EventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, eventResponse(e))
	}
	return res
}
