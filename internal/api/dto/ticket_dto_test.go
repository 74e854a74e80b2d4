package dto

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/service"
	apperrors "github.com/spec-kit/ticket-assist/pkg/errorutil"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(&CreateTicketRequest{Title: "a", Description: "b"}))

	err := Validate(&CreateTicketRequest{Title: "   "})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus)
	assert.Equal(t, "title is required", domainErr.Details["title"])
	assert.Equal(t, "description is required", domainErr.Details["description"])

	err = Validate(&AddCommentRequest{Body: "\n\t"})
	assert.True(t, apperrors.IsStatus(err, http.StatusBadRequest))
}

func TestNewTicketDetail_ExpandsReferences(t *testing.T) {
	creator := "u-1"
	ghost := "u-gone"
	now := time.Now().UTC()
	view := service.TicketView{
		Ticket: domain.Ticket{
			ID:         "t-1",
			Title:      "Export",
			Status:     domain.TicketStatusInProgress,
			CreatedBy:  creator,
			AssignedTo: &ghost,
			Comments: []domain.Comment{
				{ID: "c-1", AuthorID: &creator, Role: "user", Body: "hi", Metadata: domain.HumanMetadata(), CreatedAt: now},
				{ID: "c-2", Role: domain.AIAssistantRole, Body: "try this", IsAIGenerated: true},
			},
		},
		People: map[string]domain.User{creator: {ID: creator, Email: "owner@example.com", Role: domain.RoleUser}},
	}

	detail := NewTicketDetail(view)
	require.NotNil(t, detail.CreatedBy)
	assert.Equal(t, "owner@example.com", detail.CreatedBy.Email)
	require.NotNil(t, detail.AssignedTo)
	assert.Equal(t, ghost, detail.AssignedTo.ID)
	assert.Empty(t, detail.AssignedTo.Email)
	assert.Equal(t, []string{}, detail.RelatedSkills)

	require.Len(t, detail.Comments, 2)
	assert.Equal(t, "owner@example.com", detail.Comments[0].Author.Email)
	assert.Nil(t, detail.Comments[1].Author)
	assert.True(t, detail.Comments[1].IsAIGenerated)

	summary := NewTicketSummary(view.Ticket)
	assert.Equal(t, "Export", summary.Title)
	assert.Equal(t, domain.TicketStatusInProgress, summary.Status)
}
