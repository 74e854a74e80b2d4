package llm

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

var fencedBlock = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var errNotObject = errors.New("model output is not a JSON object")

// TriageResult is the classification produced by the triage agent.
type TriageResult struct {
	Summary       string
	Priority      domain.TicketPriority
	HelpfulNotes  string
	RelatedSkills []string
}

// Normalizer turns free-form model output into typed results. It performs
// no I/O besides logging.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewNormalizer builds a Normalizer. A nil logger discards diagnostics.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ParseTriage extracts a TriageResult. The boolean is false when the text
// holds no usable JSON object.
func (n *Normalizer) ParseTriage(raw string) (*TriageResult, bool) {
	obj, ok := n.extract(raw, "triage")
	if !ok {
		return nil, false
	}

	result := &TriageResult{
		Summary:       stringField(obj, "summary"),
		Priority:      normalizePriority(stringField(obj, "priority")),
		HelpfulNotes:  stringField(obj, "helpfulNotes"),
		RelatedSkills: stringSlice(obj["relatedSkills"]),
	}
	return result, true
}

// ParseModeratorAssist extracts a suggestion bundle.
func (n *Normalizer) ParseModeratorAssist(raw string) (*domain.AISuggestions, bool) {
	obj, ok := n.extract(raw, "moderator-assist")
	if !ok {
		return nil, false
	}

	bundle := &domain.AISuggestions{
		FollowUpTasks:  []domain.FollowUpTask{},
		SimilarTickets: []domain.SimilarTicket{},
	}
	if reply := strings.TrimSpace(stringField(obj, "replyProposal")); reply != "" {
		bundle.ReplyProposal = &reply
	}

	for _, item := range objectSlice(obj["followUpTasks"]) {
		title := strings.TrimSpace(stringField(item, "title"))
		if title == "" {
			continue
		}
		task := domain.FollowUpTask{
			Title:                 title,
			SuggestedAssigneeID:   stringField(item, "suggestedAssigneeId"),
			SuggestedAssigneeName: stringField(item, "suggestedAssigneeName"),
			Notes:                 stringField(item, "notes"),
		}
		if due, ok := parseTime(stringField(item, "dueBy")); ok {
			task.DueBy = &due
		}
		bundle.FollowUpTasks = append(bundle.FollowUpTasks, task)
	}

	for _, item := range objectSlice(obj["similarTickets"]) {
		ref := domain.SimilarTicket{
			TicketID:  stringField(item, "ticketId"),
			Title:     stringField(item, "title"),
			Rationale: stringField(item, "rationale"),
		}
		if ref.TicketID == "" && ref.Title == "" && ref.Rationale == "" {
			continue
		}
		bundle.SimilarTickets = append(bundle.SimilarTickets, ref)
	}

	if score, ok := confidence(obj["confidenceScore"]); ok {
		bundle.ConfidenceScore = &score
	}

	if generated, ok := parseTime(stringField(obj, "generatedAt")); ok {
		bundle.GeneratedAt = generated
	} else {
		bundle.GeneratedAt = n.now()
	}
	return bundle, true
}

func (n *Normalizer) extract(raw, schema string) (map[string]any, bool) {
	candidate := strings.TrimSpace(raw)
	if match := fencedBlock.FindStringSubmatch(raw); match != nil {
		candidate = match[1]
	}

	obj, err := decodeObject(candidate)
	if err != nil {
		n.logger.Warn("unusable model output",
			zap.String("schema", schema),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return nil, false
	}
	return obj, true
}

func decodeObject(candidate string) (map[string]any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, err
	}
	if inner, ok := parsed.(string); ok {
		parsed = nil
		if err := json.Unmarshal([]byte(inner), &parsed); err != nil {
			return nil, err
		}
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

func normalizePriority(value string) domain.TicketPriority {
	switch p := domain.TicketPriority(strings.ToLower(strings.TrimSpace(value))); p {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh:
		return p
	}
	return domain.TicketPriorityMedium
}

func confidence(value any) (float64, bool) {
	var score float64
	switch v := value.(type) {
	case float64:
		score = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		score = parsed
	default:
		return 0, false
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		return 0, false
	}
	return score, true
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func stringSlice(value any) []string {
	items, _ := value.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func objectSlice(value any) []map[string]any {
	items, _ := value.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
