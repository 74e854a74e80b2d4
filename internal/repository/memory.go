package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs the
// development mode without Postgres and the package tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	now     func() time.Time
}

// NewMemoryTicketRepository returns an empty in-memory store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if _, exists := r.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket %s already exists", ticket.ID)
	}
	now := r.now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Comments == nil {
		ticket.Comments = []domain.Comment{}
	}
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (r *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Ticket
	for _, ticket := range r.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		matched = append(matched, *cloneTicket(ticket))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryTicketRepository) UpdateByID(_ context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
	if patch.AppendComment != nil && patch.ReplaceComment != nil {
		return nil, fmt.Errorf("append and replace comment in one patch")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !patch.Empty() {
		patch.Apply(ticket)
		ticket.UpdatedAt = r.now()
	}
	return cloneTicket(ticket), nil
}

func (r *MemoryTicketRepository) ClaimTriage(_ context.Context, id, runKey string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if ticket.TriageRunKey != nil && *ticket.TriageRunKey != runKey {
		return nil, domain.ErrTriageClaimed
	}
	now := r.now()
	key := runKey
	ticket.TriageRunKey = &key
	if ticket.TriageStartedAt == nil {
		ticket.TriageStartedAt = &now
	}
	ticket.Status = domain.TicketStatusTodo
	ticket.UpdatedAt = now
	return cloneTicket(ticket), nil
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	if filter.CreatedBy != nil && ticket.CreatedBy != *filter.CreatedBy {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Unassigned && ticket.AssignedTo != nil {
		return false
	}
	if filter.Untriaged && ticket.TriageRunKey != nil {
		return false
	}
	if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	return true
}

// cloneTicket deep-copies t so callers never share slices with the store.
func cloneTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		out.AssignedTo = &v
	}
	if t.Priority != nil {
		v := *t.Priority
		out.Priority = &v
	}
	if t.HelpfulNotes != nil {
		v := *t.HelpfulNotes
		out.HelpfulNotes = &v
	}
	if t.Deadline != nil {
		v := *t.Deadline
		out.Deadline = &v
	}
	if t.TriageRunKey != nil {
		v := *t.TriageRunKey
		out.TriageRunKey = &v
	}
	if t.TriageStartedAt != nil {
		v := *t.TriageStartedAt
		out.TriageStartedAt = &v
	}
	if t.RelatedSkills != nil {
		out.RelatedSkills = append([]string{}, t.RelatedSkills...)
	}
	if t.Comments != nil {
		out.Comments = make([]domain.Comment, len(t.Comments))
		for i, c := range t.Comments {
			out.Comments[i] = cloneComment(c)
		}
	}
	if t.AISuggestions != nil {
		out.AISuggestions = cloneSuggestions(t.AISuggestions)
	}
	return &out
}

func cloneComment(c domain.Comment) domain.Comment {
	out := c
	if c.AuthorID != nil {
		v := *c.AuthorID
		out.AuthorID = &v
	}
	if c.Metadata.Attachment != nil {
		att := *c.Metadata.Attachment
		att.FollowUpTasks = append([]domain.FollowUpTask(nil), att.FollowUpTasks...)
		att.SimilarTickets = append([]domain.SimilarTicket(nil), att.SimilarTickets...)
		out.Metadata.Attachment = &att
	}
	if c.Metadata.Decision != nil {
		d := *c.Metadata.Decision
		out.Metadata.Decision = &d
	}
	return out
}

func cloneSuggestions(s *domain.AISuggestions) *domain.AISuggestions {
	raw, err := json.Marshal(s)
	if err != nil {
		out := *s
		return &out
	}
	var out domain.AISuggestions
	if err := json.Unmarshal(raw, &out); err != nil {
		copied := *s
		return &copied
	}
	return &out
}

// MemoryUserRepository keeps accounts in process memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
	now   func() time.Time
}

// NewMemoryUserRepository returns a store seeded with the given users.
func NewMemoryUserRepository(seed ...domain.User) *MemoryUserRepository {
	repo := &MemoryUserRepository{
		users: make(map[string]*domain.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for i := range seed {
		user := seed[i]
		_ = repo.Create(context.Background(), &user)
	}
	return repo
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return fmt.Errorf("email %s already registered", user.Email)
		}
	}
	if user.CreatedAt.IsZero() {
		// Keep seed order stable for "oldest first" lookups.
		user.CreatedAt = r.now().Add(time.Duration(len(r.users)) * time.Microsecond)
	}
	stored := *user
	stored.Skills = append([]string{}, user.Skills...)
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r *MemoryUserRepository) GetByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			result[id] = *user
		}
	}
	return result, nil
}

func (r *MemoryUserRepository) FindByRoleAndSkill(_ context.Context, role domain.Role, pattern string) (*domain.User, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile skill pattern: %w", err)
	}
	for _, user := range r.byRole(role) {
		for _, skill := range user.Skills {
			if re.MatchString(skill) {
				out := user
				return &out, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryUserRepository) FindFirstByRole(_ context.Context, role domain.Role) (*domain.User, error) {
	users := r.byRole(role)
	if len(users) == 0 {
		return nil, domain.ErrNotFound
	}
	out := users[0]
	return &out, nil
}

func (r *MemoryUserRepository) byRole(role domain.Role) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []domain.User
	for _, user := range r.users {
		if user.Role == role {
			users = append(users, *user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}
