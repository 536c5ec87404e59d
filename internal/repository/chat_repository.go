package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quickbite/chat-service/internal/models"
)

type ChatRepository interface {
	CreateChatRoom(ctx context.Context, room *models.ChatRoom) error
	GetChatRoomByID(ctx context.Context, id string) (*models.ChatRoom, error)
	GetActiveChatRoom(ctx context.Context, customerID string) (*models.ChatRoom, error)
	GetDelivererChatRooms(ctx context.Context, delivererID string) ([]*models.ChatRoom, error)
	DeactivateChatRoom(ctx context.Context, roomID string) error
	AppendOrderStatus(ctx context.Context, orderID, status string) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, chatRoomID string, limit int) ([]*models.Message, error)
	MarkMessagesAsRead(ctx context.Context, chatRoomID, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	InitializeTables() error
}

type chatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) ChatRepository {
	return &chatRepository{
		db: db,
	}
}

func (r *chatRepository) InitializeTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		customer_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS order_status (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		order_id UUID NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS chat_rooms (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		type TEXT NOT NULL DEFAULT 'deliverer',
		customer_id UUID NOT NULL,
		deliverer_id UUID NOT NULL,
		order_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		chat_room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		sender_type TEXT NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		read_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_rooms_active_order
		ON chat_rooms(customer_id, order_id) WHERE is_active;
	CREATE INDEX IF NOT EXISTS idx_chat_rooms_customer ON chat_rooms(customer_id);
	CREATE INDEX IF NOT EXISTS idx_chat_rooms_deliverer ON chat_rooms(deliverer_id);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_room_id ON messages(chat_room_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	CREATE INDEX IF NOT EXISTS idx_order_status_order ON order_status(order_id, created_at);

	CREATE OR REPLACE FUNCTION unread_message_count(p_user_id UUID) RETURNS BIGINT AS $fn$
		SELECT COUNT(*)
		FROM messages m
		JOIN chat_rooms cr ON cr.id = m.chat_room_id
		WHERE m.read_at IS NULL
		  AND m.sender_id <> p_user_id
		  AND (cr.customer_id = p_user_id OR cr.deliverer_id = p_user_id)
	$fn$ LANGUAGE sql STABLE;

	CREATE OR REPLACE FUNCTION notify_message_inserted() RETURNS TRIGGER AS $fn$
	BEGIN
		PERFORM pg_notify('message_inserted', row_to_json(NEW)::text);
		RETURN NEW;
	END;
	$fn$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS messages_notify_insert ON messages;
	CREATE TRIGGER messages_notify_insert
		AFTER INSERT ON messages
		FOR EACH ROW EXECUTE FUNCTION notify_message_inserted();
	`

	_, err := r.db.Exec(query)
	return err
}

// latestStatusJoin pulls the most recent order_status row for the room's
// order, used by every room read for display context.
const latestStatusJoin = `
	LEFT JOIN LATERAL (
		SELECT status FROM order_status
		WHERE order_id = cr.order_id
		ORDER BY created_at DESC
		LIMIT 1
	) os ON TRUE
`

func (r *chatRepository) CreateChatRoom(ctx context.Context, room *models.ChatRoom) error {
	query := `
	INSERT INTO chat_rooms (id, type, customer_id, deliverer_id, order_id, created_at, is_active)
	VALUES ($1, $2, $3, $4, $5, NOW(), TRUE)
	ON CONFLICT (customer_id, order_id) WHERE is_active
		DO UPDATE SET deliverer_id = EXCLUDED.deliverer_id
	RETURNING id, created_at
	`

	var id string
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query,
		room.ID, room.Type, room.CustomerID, room.DelivererID, room.OrderID,
	).Scan(&id, &createdAt)

	if err != nil {
		return err
	}

	room.ID = id
	room.CreatedAt = createdAt
	room.IsActive = true
	return nil
}

func (r *chatRepository) GetChatRoomByID(ctx context.Context, id string) (*models.ChatRoom, error) {
	query := `
	SELECT cr.id, cr.type, cr.customer_id, cr.deliverer_id, cr.order_id,
	       cr.created_at, cr.is_active, COALESCE(os.status, '')
	FROM chat_rooms cr
	` + latestStatusJoin + `
	WHERE cr.id = $1
	`

	var room models.ChatRoom
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID, &room.Type, &room.CustomerID, &room.DelivererID, &room.OrderID,
		&room.CreatedAt, &room.IsActive, &room.OrderStatus,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("chat room not found")
		}
		return nil, err
	}

	return &room, nil
}

func (r *chatRepository) GetActiveChatRoom(ctx context.Context, customerID string) (*models.ChatRoom, error) {
	query := `
	SELECT cr.id, cr.type, cr.customer_id, cr.deliverer_id, cr.order_id,
	       cr.created_at, cr.is_active, COALESCE(os.status, '')
	FROM chat_rooms cr
	` + latestStatusJoin + `
	WHERE cr.customer_id = $1 AND cr.type = $2 AND cr.is_active = TRUE
	ORDER BY cr.created_at DESC
	LIMIT 1
	`

	var room models.ChatRoom
	err := r.db.QueryRowContext(ctx, query, customerID, models.ChatRoomTypeDeliverer).Scan(
		&room.ID, &room.Type, &room.CustomerID, &room.DelivererID, &room.OrderID,
		&room.CreatedAt, &room.IsActive, &room.OrderStatus,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &room, nil
}

func (r *chatRepository) GetDelivererChatRooms(ctx context.Context, delivererID string) ([]*models.ChatRoom, error) {
	query := `
	SELECT cr.id, cr.type, cr.customer_id, cr.deliverer_id, cr.order_id,
	       cr.created_at, cr.is_active, COALESCE(os.status, '')
	FROM chat_rooms cr
	` + latestStatusJoin + `
	WHERE cr.deliverer_id = $1 AND cr.type = $2
	ORDER BY cr.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, delivererID, models.ChatRoomTypeDeliverer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.ChatRoom
	for rows.Next() {
		var room models.ChatRoom
		err := rows.Scan(
			&room.ID, &room.Type, &room.CustomerID, &room.DelivererID, &room.OrderID,
			&room.CreatedAt, &room.IsActive, &room.OrderStatus,
		)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

func (r *chatRepository) DeactivateChatRoom(ctx context.Context, roomID string) error {
	query := `
	UPDATE chat_rooms
	SET is_active = FALSE
	WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, roomID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("chat room not found")
	}

	return nil
}

func (r *chatRepository) AppendOrderStatus(ctx context.Context, orderID, status string) error {
	query := `
	INSERT INTO order_status (order_id, status, created_at)
	VALUES ($1, $2, NOW())
	`

	_, err := r.db.ExecContext(ctx, query, orderID, status)
	return err
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
	INSERT INTO messages (id, chat_room_id, sender_id, sender_type, content, message_type, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	RETURNING id, created_at
	`

	metadata := msg.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	var id string
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query,
		msg.ID, msg.ChatRoomID, msg.SenderID, msg.SenderType, msg.Content, msg.MessageType, metadata,
	).Scan(&id, &createdAt)

	if err != nil {
		return err
	}

	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

func (r *chatRepository) GetMessages(ctx context.Context, chatRoomID string, limit int) ([]*models.Message, error) {
	query := `
	SELECT id, chat_room_id, sender_id, sender_type, content, message_type, metadata, created_at, read_at
	FROM messages
	WHERE chat_room_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, chatRoomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var readAt sql.NullTime
		err := rows.Scan(
			&msg.ID, &msg.ChatRoomID, &msg.SenderID, &msg.SenderType,
			&msg.Content, &msg.MessageType, (*[]byte)(&msg.Metadata), &msg.CreatedAt, &readAt,
		)
		if err != nil {
			return nil, err
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, &msg)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

func (r *chatRepository) MarkMessagesAsRead(ctx context.Context, chatRoomID, userID string) (int, error) {
	query := `
	UPDATE messages
	SET read_at = NOW()
	WHERE chat_room_id = $1 AND sender_id != $2 AND read_at IS NULL
	RETURNING id
	`

	rows, err := r.db.QueryContext(ctx, query, chatRoomID, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}

	return count, rows.Err()
}

func (r *chatRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := `SELECT unread_message_count($1)`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}
