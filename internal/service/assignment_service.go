package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/repository"
)

// AssignmentService picks the handler for a triaged ticket.
type AssignmentService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{users: deps.UserRepo, logger: logger}
}

// FindAssignee returns the oldest moderator with a skill matching any tag,
// else the oldest admin. It returns domain.ErrNoAssignee when neither exists.
func (s *AssignmentService) FindAssignee(ctx context.Context, skills []string) (*domain.User, error) {
	if pattern := SkillPattern(skills); pattern != "" {
		moderator, err := s.users.FindByRoleAndSkill(ctx, domain.RoleModerator, pattern)
		switch {
		case err == nil:
			return moderator, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		s.logger.Debug("no skill-matching moderator", zap.String("pattern", pattern))
	}

	admin, err := s.users.FindFirstByRole(ctx, domain.RoleAdmin)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoAssignee
	}
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// SkillPattern joins escaped skill tags into one alternation. Blank tags are
// ignored; no tags yields an empty pattern.
func SkillPattern(skills []string) string {
	parts := make([]string, 0, len(skills))
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(skill))
	}
	return strings.Join(parts, "|")
}
