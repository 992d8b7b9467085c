package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cmc-connect/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	// ErrEditRejected covers the server-side edit guards: not the sender,
	// edit window closed, or the message was deleted for all.
	ErrEditRejected = errors.New("message can no longer be edited")
)

// DefaultMessagePageSize caps how many messages a single list call returns.
const DefaultMessagePageSize = 100

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error)
	ListForUser(ctx context.Context, conversationID int, userID int, limit int) ([]models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	Edit(ctx context.Context, messageID int, senderID int, content string) (models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID int, userID int) error
	SoftDeleteForUser(ctx context.Context, messageID int, userID int) error
	DeleteForAll(ctx context.Context, messageID int, senderID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message and bumps the conversation's recency in the same
// transaction.
func (r *MessageRepo) Create(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, content, is_edited, deleted_for_all, created_at`,
		conversationID, senderID, content).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at=NOW() WHERE id=$1`, conversationID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	msg.ReadBy = []int{}
	return msg, nil
}

// ListForUser returns ordered messages filtered by the caller's
// delete-for-me markers. Delete-for-all rows stay visible for everyone;
// their content is already the placeholder.
func (r *MessageRepo) ListForUser(ctx context.Context, conversationID int, userID int, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > DefaultMessagePageSize {
		limit = DefaultMessagePageSize
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.is_edited, m.deleted_for_all, m.created_at,
                COALESCE(array_agg(r.user_id) FILTER (WHERE r.user_id IS NOT NULL), '{}') AS read_by
         FROM messages m
         LEFT JOIN message_reads r ON r.message_id = m.id
         WHERE m.conversation_id=$1
           AND NOT EXISTS (
               SELECT 1 FROM message_deletions d WHERE d.message_id=m.id AND d.user_id=$2
           )
         GROUP BY m.id
         ORDER BY m.created_at ASC
         LIMIT $3`, conversationID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Get retrieves a single message with its read set.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.is_edited, m.deleted_for_all, m.created_at,
                COALESCE(array_agg(r.user_id) FILTER (WHERE r.user_id IS NOT NULL), '{}') AS read_by
         FROM messages m
         LEFT JOIN message_reads r ON r.message_id = m.id
         WHERE m.id=$1
         GROUP BY m.id`, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Edit updates the content inside the edit window. The guards are repeated
// in SQL so a stale caller-side check cannot slip an update through.
func (r *MessageRepo) Edit(ctx context.Context, messageID int, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$1, is_edited=TRUE
         WHERE id=$2 AND sender_id=$3 AND deleted_for_all=FALSE
           AND created_at >= NOW() - INTERVAL '15 minutes'
         RETURNING id, conversation_id, sender_id, content, is_edited, deleted_for_all, created_at`,
		content, messageID, senderID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, messageID); errors.Is(getErr, ErrMessageNotFound) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, ErrEditRejected
	}
	return msg, err
}

// MarkConversationRead records the reader on every message of the
// conversation they have not read yet. The read set only ever grows.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID int, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id)
         SELECT id, $2 FROM messages WHERE conversation_id=$1
         ON CONFLICT DO NOTHING`, conversationID, userID)
	return err
}

// SoftDeleteForUser hides a message from one user's view only.
func (r *MessageRepo) SoftDeleteForUser(ctx context.Context, messageID int, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_deletions (message_id, user_id)
         SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM messages WHERE id=$1)
         ON CONFLICT DO NOTHING`, messageID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		// Either the message does not exist or the marker was already set;
		// distinguish the two.
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, messageID); err != nil {
			return err
		}
		if !exists {
			return ErrMessageNotFound
		}
	}
	return nil
}

// DeleteForAll replaces the content with the placeholder and freezes the
// message. Only the sender may do this.
func (r *MessageRepo) DeleteForAll(ctx context.Context, messageID int, senderID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_for_all=TRUE, content=$1 WHERE id=$2 AND sender_id=$3`,
		models.DeletedPlaceholder, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (models.Message, error) {
	var msg models.Message
	var readBy pq.Int64Array
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
		&msg.IsEdited, &msg.DeletedForAll, &msg.CreatedAt, &readBy)
	if err != nil {
		return models.Message{}, err
	}
	msg.ReadBy = make([]int, len(readBy))
	for i, id := range readBy {
		msg.ReadBy[i] = int(id)
	}
	return msg, nil
}
