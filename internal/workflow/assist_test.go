package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/llm"
	"github.com/spec-kit/ticket-assist/internal/mail"
	"github.com/spec-kit/ticket-assist/internal/repository"
	"github.com/spec-kit/ticket-assist/internal/service"
)

type stubSuggester struct {
	bundle *domain.AISuggestions
	inputs []llm.AssistInput
}

func (s *stubSuggester) Suggest(_ context.Context, in llm.AssistInput) (*domain.AISuggestions, error) {
	s.inputs = append(s.inputs, in)
	return s.bundle, nil
}

// lossyTickets applies the first suggestion write but reports a failure,
// like a store whose acknowledgement was lost.
type lossyTickets struct {
	repository.TicketRepository
	dropped bool
}

func (l *lossyTickets) UpdateByID(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
	ticket, err := l.TicketRepository.UpdateByID(ctx, id, patch)
	if err == nil && patch.AISuggestions != nil && !l.dropped {
		l.dropped = true
		return nil, errors.New("connection reset by peer")
	}
	return ticket, err
}

type assistFixture struct {
	tickets   *repository.MemoryTicketRepository
	users     *repository.MemoryUserRepository
	outbox    *mail.LogSender
	suggester *stubSuggester
	workflow  *Assist
	ticket    *domain.Ticket
	moderator *domain.User
}

func newAssistFixture(t *testing.T, status domain.TicketStatus) *assistFixture {
	t.Helper()
	ctx := context.Background()
	f := &assistFixture{
		tickets:   repository.NewMemoryTicketRepository(),
		users:     repository.NewMemoryUserRepository(),
		outbox:    mail.NewLogSender("noreply@example.com", nil),
		suggester: &stubSuggester{},
	}
	f.moderator = &domain.User{Email: "mod@example.com", Role: domain.RoleModerator}
	require.NoError(t, f.users.Create(ctx, f.moderator))

	scheduler, _ := newTestScheduler(3)
	notifier := service.NewNotificationService(service.NotificationDependencies{Sender: f.outbox, UserRepo: f.users})
	f.workflow = NewAssist(scheduler, f.tickets, f.users, f.suggester, notifier, nil, nil)

	f.ticket = &domain.Ticket{
		Title:       "Export fails",
		Description: "CSV export times out",
		Status:      status,
		CreatedBy:   "creator-1",
		AssignedTo:  &f.moderator.ID,
	}
	require.NoError(t, f.tickets.Create(ctx, f.ticket))
	return f
}

func reply(text string) *domain.AISuggestions {
	score := 0.8
	return &domain.AISuggestions{
		ReplyProposal:   &text,
		FollowUpTasks:   []domain.FollowUpTask{{Title: "Raise export timeout"}},
		SimilarTickets:  []domain.SimilarTicket{{TicketID: "t-7", Rationale: "same endpoint"}},
		ConfidenceScore: &score,
	}
}

func TestAssist_ResolvedTicketIsNoop(t *testing.T) {
	f := newAssistFixture(t, domain.TicketStatusResolved)
	f.suggester.bundle = reply("hello")

	outcome, err := f.workflow.Run(context.Background(), "evt-1", f.ticket.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, domain.MsgAssistSkippedResolved, outcome.Message)
	assert.Empty(t, f.suggester.inputs, "no LLM call")

	ticket, err := f.tickets.GetByID(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, ticket.Comments)
	assert.Nil(t, ticket.AISuggestions)
}

func TestAssist_PersistsSuggestionsAndComment(t *testing.T) {
	ctx := context.Background()
	f := newAssistFixture(t, domain.TicketStatusInProgress)
	for i := 1; i <= 7; i++ {
		c := domain.Comment{ID: fmt.Sprintf("c%d", i), Role: "user", Body: fmt.Sprintf("note %d", i), Metadata: domain.HumanMetadata()}
		_, err := f.tickets.UpdateByID(ctx, f.ticket.ID, domain.TicketPatch{AppendComment: &c})
		require.NoError(t, err)
	}
	f.suggester.bundle = reply("Please retry with a smaller range.")

	outcome, err := f.workflow.Run(ctx, "evt-1", f.ticket.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.NotEmpty(t, outcome.CommentID)

	require.Len(t, f.suggester.inputs, 1)
	digest := f.suggester.inputs[0].Digest
	assert.Contains(t, digest, "Recent comments:")
	assert.Contains(t, digest, "1. user: note 3")
	assert.Contains(t, digest, "5. user: note 7")
	assert.NotContains(t, digest, "note 2")

	ticket, err := f.tickets.GetByID(ctx, f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.AISuggestions)
	assert.Equal(t, "Please retry with a smaller range.", *ticket.AISuggestions.ReplyProposal)

	require.Len(t, ticket.Comments, 8)
	ai := ticket.FindComment(outcome.CommentID)
	require.NotNil(t, ai)
	assert.True(t, ai.IsAIGenerated)
	assert.Equal(t, domain.AIAssistantRole, ai.Role)
	assert.Equal(t, domain.MetadataAISuggestionAttachment, ai.Metadata.Kind)
	require.NotNil(t, ai.Metadata.Attachment)
	assert.Len(t, ai.Metadata.Attachment.FollowUpTasks, 1)
	assert.Nil(t, ai.Metadata.Decision)

	sent := f.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "mod@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "Please retry with a smaller range.")
}

func TestAssist_RerunAfterResolveAddsNothing(t *testing.T) {
	ctx := context.Background()
	f := newAssistFixture(t, domain.TicketStatusInProgress)
	f.suggester.bundle = reply("first")

	_, err := f.workflow.Run(ctx, "evt-1", f.ticket.ID)
	require.NoError(t, err)

	outcome, err := f.workflow.Run(ctx, "evt-2", f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgAssistSkippedResolved, outcome.Message)
	assert.Len(t, f.suggester.inputs, 1)

	ticket, err := f.tickets.GetByID(ctx, f.ticket.ID)
	require.NoError(t, err)
	assert.Len(t, ticket.Comments, 1)
}

func TestAssist_RetriedPersistDoesNotDuplicateComment(t *testing.T) {
	ctx := context.Background()
	f := newAssistFixture(t, domain.TicketStatusInProgress)
	f.suggester.bundle = reply("only once")
	f.workflow.tickets = &lossyTickets{TicketRepository: f.tickets}

	outcome, err := f.workflow.Run(ctx, "evt-1", f.ticket.ID)
	require.NoError(t, err)

	ticket, err := f.tickets.GetByID(ctx, f.ticket.ID)
	require.NoError(t, err)
	require.Len(t, ticket.Comments, 1)
	assert.Equal(t, outcome.CommentID, ticket.Comments[0].ID)
}

func TestAssist_NoSuggestions(t *testing.T) {
	f := newAssistFixture(t, domain.TicketStatusInProgress)

	outcome, err := f.workflow.Run(context.Background(), "evt-1", f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, msgNoSuggestions, outcome.Message)
	assert.Equal(t, noCommentsDigest, f.suggester.inputs[0].Digest)

	ticket, err := f.tickets.GetByID(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Empty(t, f.outbox.Sent())
}

func TestAssist_BundleWithoutReplyResolvesWithoutComment(t *testing.T) {
	f := newAssistFixture(t, domain.TicketStatusTodo)
	f.suggester.bundle = &domain.AISuggestions{FollowUpTasks: []domain.FollowUpTask{{Title: "Call customer"}}}

	outcome, err := f.workflow.Run(context.Background(), "evt-1", f.ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, outcome.CommentID)

	ticket, err := f.tickets.GetByID(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.Empty(t, ticket.Comments)
	require.Len(t, f.outbox.Sent(), 1)
	assert.Contains(t, f.outbox.Sent()[0].Body, "No reply suggestion provided.")
}

func TestAssist_MissingTicket(t *testing.T) {
	f := newAssistFixture(t, domain.TicketStatusInProgress)

	_, err := f.workflow.Run(context.Background(), "evt-1", "")
	assert.True(t, IsNonRetriable(err))

	_, err = f.workflow.Run(context.Background(), "evt-2", "missing")
	assert.True(t, IsNonRetriable(err))
	assert.Empty(t, f.suggester.inputs)
}

func TestAssist_DigestLabels(t *testing.T) {
	ctx := context.Background()
	f := newAssistFixture(t, domain.TicketStatusInProgress)

	digest := f.workflow.digest(ctx, []domain.Comment{
		{Role: "moderator", Body: "looking"},
		{AuthorID: &f.moderator.ID, Body: "no role"},
		{Body: "anonymous"},
	})
	assert.Equal(t, "Recent comments:\n1. moderator: looking\n2. mod@example.com: no role\n3. participant: anonymous", digest)
}
