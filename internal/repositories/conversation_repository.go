package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cmc-connect/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetDirect(ctx context.Context, userID int, friendID int) (models.Conversation, error)
	CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Conversation, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
	IsMember(ctx context.Context, conversationID int, userID int) (bool, error)
	Touch(ctx context.Context, conversationID int) error
	Delete(ctx context.Context, conversationID int) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// pairKey normalizes an unordered member pair into the unique key enforced
// by the conversations table. The constraint plus the upsert below make
// direct-conversation creation safe under concurrent requests.
func pairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateOrGetDirect returns the single private conversation between two
// users, creating it if it does not exist yet. Both call orders and
// repeated calls yield the same conversation.
func (r *ConversationRepo) CreateOrGetDirect(ctx context.Context, userID int, friendID int) (models.Conversation, error) {
	if userID == friendID {
		return models.Conversation{}, errors.New("cannot start a conversation with yourself")
	}
	key := pairKey(userID, friendID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (is_group, pair_key) VALUES (FALSE, $1)
         ON CONFLICT (pair_key) DO NOTHING
         RETURNING id, is_group, name, admin_id, created_at, updated_at`, key).
		StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race or the pair already exists; fetch the winner.
		err = tx.GetContext(ctx, &conv,
			`SELECT id, is_group, name, admin_id, created_at, updated_at
             FROM conversations WHERE pair_key=$1`, key)
	}
	if err != nil {
		return models.Conversation{}, err
	}

	for _, member := range []int{userID, friendID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
             ON CONFLICT DO NOTHING`, conv.ID, member); err != nil {
			return models.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}

	conv.Members = sortedPair(userID, friendID)
	return conv, nil
}

// CreateGroup inserts a named group conversation with its member set. The
// admin is always a member.
func (r *ConversationRepo) CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Conversation, error) {
	members := map[int]struct{}{adminID: {}}
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	if len(members) < 2 {
		return models.Conversation{}, errors.New("a group needs at least two members")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (is_group, name, admin_id) VALUES (TRUE, $1, $2)
         RETURNING id, is_group, name, admin_id, created_at, updated_at`, name, adminID).
		StructScan(&conv)
	if err != nil {
		return models.Conversation{}, err
	}

	for id := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)`,
			conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
		conv.Members = append(conv.Members, id)
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// Get fetches a conversation with its member set.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, is_group, name, admin_id, created_at, updated_at
         FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	if err := r.db.SelectContext(ctx, &conv.Members,
		`SELECT user_id FROM conversation_members WHERE conversation_id=$1 ORDER BY user_id`,
		conversationID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs,
		`SELECT c.id, c.is_group, c.name, c.admin_id, c.created_at, c.updated_at
         FROM conversations c
         JOIN conversation_members cm ON cm.conversation_id = c.id AND cm.user_id=$1
         ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]int64, len(convs))
	index := make(map[int]int, len(convs))
	for i, c := range convs {
		ids[i] = int64(c.ID)
		index[c.ID] = i
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT conversation_id, user_id FROM conversation_members
         WHERE conversation_id = ANY($1) ORDER BY user_id`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var convID, memberID int
		if err := rows.Scan(&convID, &memberID); err != nil {
			return nil, err
		}
		i := index[convID]
		convs[i].Members = append(convs[i].Members, memberID)
	}
	return convs, rows.Err()
}

// IsMember checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsMember(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_members WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// Touch bumps the recency sort key after a new message.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at=NOW() WHERE id=$1`, conversationID)
	return err
}

// Delete removes a conversation; messages, reads and deletion markers go
// with it through the ON DELETE CASCADE chain.
func (r *ConversationRepo) Delete(ctx context.Context, conversationID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func sortedPair(a, b int) []int {
	if a > b {
		a, b = b, a
	}
	return []int{a, b}
}
