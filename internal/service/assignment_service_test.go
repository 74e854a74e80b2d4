package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/mail"
	"github.com/spec-kit/ticket-assist/internal/repository"
)

func TestSkillPattern(t *testing.T) {
	assert.Equal(t, "", SkillPattern(nil))
	assert.Equal(t, "", SkillPattern([]string{" ", ""}))
	assert.Equal(t, `Go|C\+\+|node\.js`, SkillPattern([]string{"Go", " C++ ", "", "node.js"}))
}

func TestAssignmentService_FindAssignee(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUserRepository(
		domain.User{Email: "admin-old@example.com", Role: domain.RoleAdmin},
		domain.User{Email: "admin-new@example.com", Role: domain.RoleAdmin},
		domain.User{Email: "cpp@example.com", Role: domain.RoleModerator, Skills: []string{"C++"}},
		domain.User{Email: "user@example.com", Role: domain.RoleUser, Skills: []string{"Go"}},
	)
	svc := NewAssignmentService(AssignmentDependencies{UserRepo: users})

	moderator, err := svc.FindAssignee(ctx, []string{"c++"})
	require.NoError(t, err)
	assert.Equal(t, "cpp@example.com", moderator.Email)

	fallback, err := svc.FindAssignee(ctx, []string{"Go"})
	require.NoError(t, err)
	assert.Equal(t, "admin-old@example.com", fallback.Email, "users are never assigned")

	fallback, err = svc.FindAssignee(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "admin-old@example.com", fallback.Email)

	empty := NewAssignmentService(AssignmentDependencies{UserRepo: repository.NewMemoryUserRepository()})
	_, err = empty.FindAssignee(ctx, []string{"Go"})
	assert.ErrorIs(t, err, domain.ErrNoAssignee)
}

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	moderator := domain.User{Email: "mod@example.com", Role: domain.RoleModerator}
	users := repository.NewMemoryUserRepository()
	require.NoError(t, users.Create(ctx, &moderator))
	outbox := mail.NewLogSender("noreply@example.com", nil)
	svc := NewNotificationService(NotificationDependencies{Sender: outbox, UserRepo: users})

	high := domain.TicketPriorityHigh
	ticket := domain.Ticket{ID: "t-1", Title: "Slow queries", Priority: &high, RelatedSkills: []string{"PostgreSQL"}}
	require.NoError(t, svc.NotifyAssignment(ctx, ticket, moderator))
	assert.Error(t, svc.NotifyAssignment(ctx, ticket, domain.User{}))

	require.NoError(t, svc.NotifySuggestions(ctx, ticket, domain.AISuggestions{}), "unassigned tickets are skipped")
	ticket.AssignedTo = &moderator.ID
	require.NoError(t, svc.NotifySuggestions(ctx, ticket, domain.AISuggestions{}))

	sent := outbox.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Ticket Assigned", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Priority: high")
	assert.Contains(t, sent[0].Body, "Helpful notes:\nnone")
	assert.Equal(t, "mod@example.com", sent[1].To)
	assert.Contains(t, sent[1].Body, "No reply suggestion provided.")
}
