package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy  *string
	Statuses   []domain.TicketStatus
	Unassigned bool
	// Untriaged keeps tickets no triage run has ever claimed.
	Untriaged bool
	CreatedTo  *time.Time
	Limit      int
	Offset     int
}

// TicketRepository is the ticket document store. Every method is atomic
// for a single ticket; concurrent updates are last-write-wins.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdateByID(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error)
	// ClaimTriage records runKey as the ticket's triage run and resets the
	// status to TODO. Claiming again with the same key succeeds; any other
	// key gets domain.ErrTriageClaimed.
	ClaimTriage(ctx context.Context, id, runKey string) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id::text, title, description, status, created_by::text, assigned_to::text,
               priority, helpful_notes, related_skills, deadline, comments, ai_suggestions,
               triage_run_key, triage_started_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	comments, err := json.Marshal(nonNilComments(ticket.Comments))
	if err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}
	skills := ticket.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	const query = `
        INSERT INTO tickets (title, description, status, created_by, related_skills, deadline, comments)
        VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb)
        RETURNING id::text, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.CreatedBy,
		skills,
		ticket.Deadline,
		string(comments),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if filter.Untriaged {
		clauses = append(clauses, "triage_run_key IS NULL")
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// UpdateByID applies the patch in a single UPDATE statement and returns the
// updated document.
func (r *ticketRepository) UpdateByID(ctx context.Context, id string, patch domain.TicketPatch) (*domain.Ticket, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}
	if patch.AppendComment != nil && patch.ReplaceComment != nil {
		return nil, errors.New("append and replace comment in one patch")
	}

	sets := []string{"updated_at=NOW()"}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.AssignedTo != nil {
		add("assigned_to", *patch.AssignedTo)
	}
	if patch.Priority != nil {
		add("priority", string(*patch.Priority))
	}
	if patch.HelpfulNotes != nil {
		add("helpful_notes", *patch.HelpfulNotes)
	}
	if patch.RelatedSkills != nil {
		add("related_skills", patch.RelatedSkills)
	}
	if patch.AISuggestions != nil {
		encoded, err := json.Marshal(patch.AISuggestions)
		if err != nil {
			return nil, fmt.Errorf("encode suggestions: %w", err)
		}
		args = append(args, string(encoded))
		sets = append(sets, fmt.Sprintf("ai_suggestions=$%d::jsonb", len(args)))
	}
	if patch.AppendComment != nil {
		probe, err := json.Marshal([]map[string]string{{"id": patch.AppendComment.ID}})
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal([]domain.Comment{*patch.AppendComment})
		if err != nil {
			return nil, fmt.Errorf("encode comment: %w", err)
		}
		args = append(args, string(probe), string(encoded))
		sets = append(sets, fmt.Sprintf(
			"comments=CASE WHEN comments @> $%d::jsonb THEN comments ELSE comments || $%d::jsonb END",
			len(args)-1, len(args)))
	}
	if patch.ReplaceComment != nil {
		encoded, err := json.Marshal(patch.ReplaceComment)
		if err != nil {
			return nil, fmt.Errorf("encode comment: %w", err)
		}
		args = append(args, patch.ReplaceComment.ID, string(encoded))
		sets = append(sets, fmt.Sprintf(`comments=(
            SELECT COALESCE(jsonb_agg(CASE WHEN elem->>'id' = $%d THEN $%d::jsonb ELSE elem END ORDER BY ord), '[]'::jsonb)
            FROM jsonb_array_elements(comments) WITH ORDINALITY AS c(elem, ord))`,
			len(args)-1, len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), ticketColumns)

	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) ClaimTriage(ctx context.Context, id, runKey string) (*domain.Ticket, error) {
	query := `
        UPDATE tickets
        SET status='TODO',
            triage_run_key=$2,
            triage_started_at=COALESCE(triage_started_at, NOW()),
            updated_at=NOW()
        WHERE id=$1 AND (triage_run_key IS NULL OR triage_run_key=$2)
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id, runKey))
	if !errors.Is(err, pgx.ErrNoRows) {
		return ticket, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrTriageClaimed
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket      domain.Ticket
		status      string
		priority    *string
		comments    []byte
		suggestions []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&status,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&priority,
		&ticket.HelpfulNotes,
		&ticket.RelatedSkills,
		&ticket.Deadline,
		&comments,
		&suggestions,
		&ticket.TriageRunKey,
		&ticket.TriageStartedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	if priority != nil {
		p := domain.TicketPriority(*priority)
		ticket.Priority = &p
	}
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &ticket.Comments); err != nil {
			return nil, fmt.Errorf("decode comments: %w", err)
		}
	}
	if len(suggestions) > 0 && string(suggestions) != "null" {
		var bundle domain.AISuggestions
		if err := json.Unmarshal(suggestions, &bundle); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
		ticket.AISuggestions = &bundle
	}
	return &ticket, nil
}

func nonNilComments(comments []domain.Comment) []domain.Comment {
	if comments == nil {
		return []domain.Comment{}
	}
	return comments
}
