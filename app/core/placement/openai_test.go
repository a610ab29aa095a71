package placement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"timecoach/app/pkg/apperr"
)

func TestParseProposal(t *testing.T) {
	raw := `{
  "schedule": [
    {"task_id": "t1", "title": "Read chapter 4", "start": "09:00", "end": "10:00", "note": "fresh morning focus"},
    {"task_id": "t2", "title": "Problem set", "start": "10:15", "end": "11:15", "note": "after a break"}
  ],
  "summary": "A front-loaded morning."
}`
	proposal, err := ParseProposal(raw)
	require.NoError(t, err)
	require.Len(t, proposal.Blocks, 2)
	require.Equal(t, "t1", proposal.Blocks[0].TaskID)
	require.Equal(t, "09:00", proposal.Blocks[0].Start)
	require.Equal(t, "after a break", proposal.Blocks[1].Note)
	require.Equal(t, "A front-loaded morning.", proposal.Summary)
}

func TestParseProposalStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"schedule\": [{\"task_id\": \"t1\", \"start\": \"09:00\", \"end\": \"10:00\"}], \"summary\": \"ok\"}\n```"
	proposal, err := ParseProposal(raw)
	require.NoError(t, err)
	require.Len(t, proposal.Blocks, 1)
	require.Equal(t, "t1", proposal.Blocks[0].TaskID)
}

func TestParseProposalBackfillsOptionalFields(t *testing.T) {
	raw := `{"schedule": [{"task_id": "t1", "start": "09:00", "end": "10:00"}]}`
	proposal, err := ParseProposal(raw)
	require.NoError(t, err)
	require.Len(t, proposal.Blocks, 1)
	require.Empty(t, proposal.Blocks[0].Title)
	require.Empty(t, proposal.Blocks[0].Note)
	require.Empty(t, proposal.Summary)
}

func completionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func TestProposePlacementRoundTrip(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		reply := "```json\n{\"schedule\": [{\"task_id\": \"t1\", \"title\": \"Reading\", \"start\": \"09:00\", \"end\": \"10:00\", \"note\": \"fresh\"}], \"summary\": \"Short day.\"}\n```"
		require.NoError(t, json.NewEncoder(w).Encode(completionResponse(reply)))
	}))
	defer server.Close()

	oracle := NewOpenAIOracle("gpt-4o-mini", 0.4, server.URL)
	proposal, err := oracle.ProposePlacement(context.Background(), Request{
		Day:      "2026-03-15",
		Occupied: []OccupiedBlock{{Title: "Lecture", Start: "14:00", End: "15:00"}},
		Tasks:    []FlexibleTask{{ID: "t1", Title: "Reading", EstimatedMinutes: 60, Priority: "must"}},
	})
	require.NoError(t, err)
	require.Len(t, proposal.Blocks, 1)
	require.Equal(t, "t1", proposal.Blocks[0].TaskID)
	require.Equal(t, "Short day.", proposal.Summary)

	require.Equal(t, "gpt-4o-mini", gotBody["model"])
	require.Equal(t, 0.4, gotBody["temperature"])
	messages, ok := gotBody["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})
	require.Contains(t, user["content"], "2026-03-15")
	require.Contains(t, user["content"], "t1")
}

func TestProposePlacementRejectsNonJSONReply(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(completionResponse("Sure! Here is your schedule: study hard.")))
	}))
	defer server.Close()

	oracle := NewOpenAIOracle("gpt-4o-mini", 0.4, server.URL)
	_, err := oracle.ProposePlacement(context.Background(), Request{Day: "2026-03-15"})
	require.Error(t, err)
	require.Equal(t, apperr.KindUpstreamFormat, apperr.KindOf(err))
}

func TestProposePlacementUpstreamFailure(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad request"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	oracle := NewOpenAIOracle("gpt-4o-mini", 0.4, server.URL)
	_, err := oracle.ProposePlacement(context.Background(), Request{Day: "2026-03-15"})
	require.Error(t, err)
	require.Equal(t, apperr.KindUpstreamFormat, apperr.KindOf(err))
}

func TestParseProposalRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"not json":         "here is your schedule!",
		"missing schedule": `{"summary": "ok"}`,
		"schedule object":  `{"schedule": {"task_id": "t1"}}`,
		"missing task_id":  `{"schedule": [{"start": "09:00", "end": "10:00"}]}`,
		"missing start":    `{"schedule": [{"task_id": "t1", "end": "10:00"}]}`,
		"blank end":        `{"schedule": [{"task_id": "t1", "start": "09:00", "end": "  "}]}`,
		"numeric task_id":  `{"schedule": [{"task_id": 7, "start": "09:00", "end": "10:00"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProposal(raw)
			require.Error(t, err)
			require.Equal(t, apperr.KindUpstreamFormat, apperr.KindOf(err))
		})
	}
}
