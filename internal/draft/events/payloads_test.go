package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPayloadAcceptsKnownPayloads(t *testing.T) {
	e := Event{
		Type:       TypeHeroSelected,
		SessionID:  uuid.New(),
		OccurredAt: time.Now(),
		Payload: HeroSelectedPayload{
			RoundNumber: 3,
			HeroID:      14,
			ActionType:  "PICK",
		},
	}
	raw, err := MarshalPayload(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"round_number": 3,
		"team_id": "00000000-0000-0000-0000-000000000000",
		"action_type": "PICK",
		"hero_id": 14,
		"auto_selected": false,
		"reserve_remaining_ms": 0
	}`, string(raw))
}

func TestMarshalPayloadNilPayload(t *testing.T) {
	raw, err := MarshalPayload(Event{Type: TypeDraftCompleted})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))
}

func TestMarshalPayloadRejectsUnknownTypes(t *testing.T) {
	_, err := MarshalPayload(Event{
		Type:    TypeCaptainReady,
		Payload: struct{ X int }{X: 1},
	})
	assert.Error(t, err)
}
