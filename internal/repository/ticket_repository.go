package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const ticketColumns = `id, title, description, category, status, priority, assigned_role,
               created_by, assigned_to, created_at, updated_at, resolved_at`

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates the Postgres ticket repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, description, category, status, priority, assigned_role,
                             created_by, assigned_to, created_at, updated_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedRole,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
	)
	if err != nil {
		return err
	}
	for i := range ticket.Activities {
		if err := r.AppendActivity(ctx, ticket.ID, &ticket.Activities[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ticketRepository) UpdateFields(ctx context.Context, id string, patch TicketPatch) (*domain.Ticket, error) {
	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.AssignedRole != nil {
		add("assigned_role", *patch.AssignedRole)
	}
	if patch.SetAssignedTo {
		add("assigned_to", patch.AssignedTo)
	}
	if patch.ResolvedAt != nil {
		add("resolved_at", *patch.ResolvedAt)
	}
	// updated_at never moves backwards.
	args = append(args, patch.UpdatedAt)
	sets = append(sets, fmt.Sprintf("updated_at=GREATEST(updated_at, $%d)", len(args)))

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *ticketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	if ticket.Responses, err = r.listResponses(ctx, id); err != nil {
		return nil, err
	}
	if ticket.Activities, err = r.listActivities(ctx, id); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := ticketWhere(filter)
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
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

func (r *ticketRepository) AppendResponse(ctx context.Context, ticketID string, response *domain.Response) error {
	const query = `
        INSERT INTO ticket_responses (id, ticket_id, text, file_url, file_type, author_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	var fileURL, fileType *string
	if response.Attachment != nil {
		fileURL = &response.Attachment.URL
		fileType = &response.Attachment.MimeType
	}
	_, err := r.db.Exec(ctx, query,
		response.ID,
		ticketID,
		response.Text,
		fileURL,
		fileType,
		response.AuthorID,
		response.CreatedAt,
	)
	return err
}

func (r *ticketRepository) AppendActivity(ctx context.Context, ticketID string, activity *domain.Activity) error {
	const query = `
        INSERT INTO ticket_activities (id, ticket_id, action, actor_id, message, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Exec(ctx, query,
		activity.ID,
		ticketID,
		activity.Action,
		activity.ActorID,
		activity.Message,
		activity.Timestamp,
	)
	return err
}

func (r *ticketRepository) RecentResponses(ctx context.Context, filter TicketFilter, limit int) ([]ResponseEntry, error) {
	where, args := ticketWhere(filter)
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`
        SELECT t.id, t.title, r.id, r.text, r.file_url, r.file_type, r.author_id, r.created_at
        FROM ticket_responses r JOIN tickets t ON t.id = r.ticket_id
        WHERE %s ORDER BY r.created_at DESC, r.seq DESC LIMIT %d`, prefixColumns(where), limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ResponseEntry
	for rows.Next() {
		var entry ResponseEntry
		var fileURL, fileType *string
		if err := rows.Scan(
			&entry.TicketID,
			&entry.TicketTitle,
			&entry.Response.ID,
			&entry.Response.Text,
			&fileURL,
			&fileType,
			&entry.Response.AuthorID,
			&entry.Response.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Response.Attachment = attachmentFrom(fileURL, fileType)
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) listResponses(ctx context.Context, ticketID string) ([]domain.Response, error) {
	const query = `
        SELECT id, text, file_url, file_type, author_id, created_at
        FROM ticket_responses WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Response
	for rows.Next() {
		var resp domain.Response
		var fileURL, fileType *string
		if err := rows.Scan(&resp.ID, &resp.Text, &fileURL, &fileType, &resp.AuthorID, &resp.CreatedAt); err != nil {
			return nil, err
		}
		resp.Attachment = attachmentFrom(fileURL, fileType)
		result = append(result, resp)
	}
	return result, rows.Err()
}

func (r *ticketRepository) listActivities(ctx context.Context, ticketID string) ([]domain.Activity, error) {
	const query = `
        SELECT id, action, actor_id, message, created_at
        FROM ticket_activities WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Activity
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(&act.ID, &act.Action, &act.ActorID, &act.Message, &act.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, act)
	}
	return result, rows.Err()
}

func ticketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	inClause := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ",")))
	}
	inClause("status", toStrings(filter.Statuses))
	inClause("priority", toStrings(filter.Priorities))
	inClause("category", toStrings(filter.Categories))
	inClause("assigned_role", toStrings(filter.AssignedRoles))

	return strings.Join(clauses, " AND "), args
}

// prefixColumns qualifies ticket columns when the filter is reused in a join.
func prefixColumns(where string) string {
	for _, col := range []string{"created_by", "assigned_to", "status", "priority", "category", "assigned_role"} {
		where = strings.ReplaceAll(where, col+"=", "t."+col+"=")
		where = strings.ReplaceAll(where, col+" IN", "t."+col+" IN")
	}
	return where
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedRole,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func attachmentFrom(url, mimeType *string) *domain.Attachment {
	if url == nil || *url == "" {
		return nil
	}
	att := &domain.Attachment{URL: *url}
	if mimeType != nil {
		att.MimeType = *mimeType
	}
	return att
}
