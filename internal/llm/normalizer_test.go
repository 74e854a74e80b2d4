package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

func fixedNormalizer(now time.Time) *Normalizer {
	n := NewNormalizer(nil)
	n.now = func() time.Time { return now }
	return n
}

func TestParseTriage_Encodings(t *testing.T) {
	cases := map[string]string{
		"fenced":         "```json\n{\"priority\":\"high\"}\n```",
		"bare fence":     "Here you go:\n```\n{\"priority\":\"high\"}\n```\nthanks",
		"raw":            "  {\"priority\":\"high\"}\n",
		"double encoded": `"{\"priority\":\"high\"}"`,
	}

	n := NewNormalizer(nil)
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			result, ok := n.ParseTriage(raw)
			require.True(t, ok)
			assert.Equal(t, domain.TicketPriorityHigh, result.Priority)
			assert.Empty(t, result.RelatedSkills)
		})
	}
}

func TestParseTriage_Unusable(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := NewNormalizer(zap.New(core))

	for _, raw := range []string{
		`{"priority":"high"`,
		"",
		"not json at all",
		`["high"]`,
		`"\"just a string\""`,
	} {
		result, ok := n.ParseTriage(raw)
		assert.False(t, ok, raw)
		assert.Nil(t, result)
	}

	require.Equal(t, 5, logs.Len())
	assert.Equal(t, `{"priority":"high"`, logs.All()[0].ContextMap()["raw"])
}

func TestParseTriage_Fields(t *testing.T) {
	n := NewNormalizer(nil)
	raw := `{"summary":"Login fails","priority":"URGENT","helpfulNotes":"Check the session store",
		"relatedSkills":["React", "", 42, " Node.js "]}`

	result, ok := n.ParseTriage(raw)
	require.True(t, ok)
	assert.Equal(t, "Login fails", result.Summary)
	assert.Equal(t, domain.TicketPriorityMedium, result.Priority)
	assert.Equal(t, "Check the session store", result.HelpfulNotes)
	assert.Equal(t, []string{"React", "Node.js"}, result.RelatedSkills)

	result, ok = n.ParseTriage(`{"priority":"Low"}`)
	require.True(t, ok)
	assert.Equal(t, domain.TicketPriorityLow, result.Priority)
}

func TestParseModeratorAssist_Confidence(t *testing.T) {
	n := NewNormalizer(nil)

	cases := []struct {
		raw  string
		want *float64
	}{
		{`{"confidenceScore": 1.5}`, nil},
		{`{"confidenceScore": -0.1}`, nil},
		{`{"confidenceScore": "abc"}`, nil},
		{`{"confidenceScore": null}`, nil},
		{`{"confidenceScore": 0.73}`, ptr(0.73)},
		{`{"confidenceScore": "0.5"}`, ptr(0.5)},
		{`{"confidenceScore": 1}`, ptr(1.0)},
	}
	for _, tc := range cases {
		bundle, ok := n.ParseModeratorAssist(tc.raw)
		require.True(t, ok, tc.raw)
		if tc.want == nil {
			assert.Nil(t, bundle.ConfidenceScore, tc.raw)
			continue
		}
		require.NotNil(t, bundle.ConfidenceScore, tc.raw)
		assert.InDelta(t, *tc.want, *bundle.ConfidenceScore, 1e-9)
	}
}

func TestParseModeratorAssist_Bundle(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	raw := "```json\n" + `{
		"replyProposal": "Please clear your cache.",
		"followUpTasks": [
			{"title": "Reproduce", "dueBy": "2024-05-03", "notes": "use staging"},
			{"notes": "no title"},
			{"title": "Patch", "dueBy": "someday", "suggestedAssigneeName": "Kim"}
		],
		"similarTickets": [
			{"ticketId": "t-9", "rationale": "same stack trace"},
			{},
			{"title": "Old login bug"}
		],
		"confidenceScore": 0.8
	}` + "\n```"

	bundle, ok := n.ParseModeratorAssist(raw)
	require.True(t, ok)
	require.NotNil(t, bundle.ReplyProposal)
	assert.Equal(t, "Please clear your cache.", *bundle.ReplyProposal)

	require.Len(t, bundle.FollowUpTasks, 2)
	assert.Equal(t, "Reproduce", bundle.FollowUpTasks[0].Title)
	require.NotNil(t, bundle.FollowUpTasks[0].DueBy)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), *bundle.FollowUpTasks[0].DueBy)
	assert.Equal(t, "Patch", bundle.FollowUpTasks[1].Title)
	assert.Nil(t, bundle.FollowUpTasks[1].DueBy)
	assert.Equal(t, "Kim", bundle.FollowUpTasks[1].SuggestedAssigneeName)

	require.Len(t, bundle.SimilarTickets, 2)
	assert.Equal(t, "t-9", bundle.SimilarTickets[0].TicketID)
	assert.Equal(t, "Old login bug", bundle.SimilarTickets[1].Title)

	assert.Equal(t, now, bundle.GeneratedAt)
}

func TestParseModeratorAssist_GeneratedAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := fixedNormalizer(now)

	bundle, ok := n.ParseModeratorAssist(`{"generatedAt":"2024-04-30T08:15:00Z","replyProposal":null}`)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC), bundle.GeneratedAt)
	assert.Nil(t, bundle.ReplyProposal)
	assert.Empty(t, bundle.FollowUpTasks)
	assert.Empty(t, bundle.SimilarTickets)

	bundle, ok = n.ParseModeratorAssist(`{"generatedAt":"yesterday","replyProposal":"  "}`)
	require.True(t, ok)
	assert.Equal(t, now, bundle.GeneratedAt)
	assert.Nil(t, bundle.ReplyProposal)
}

func ptr(v float64) *float64 { return &v }
