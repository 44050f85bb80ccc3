package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clron/model"
)

// ChatSummary is the lightweight conversation record returned when
// listing a caller's chats.
type ChatSummary struct {
	ChatID      string    `json:"chat_id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"last_message"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatStore persists conversation turns and their summaries.
type ChatStore struct {
	db *sql.DB
}

// NewChatStore opens (creating if needed) the chat database under dataDir.
func NewChatStore(dataDir string) (*ChatStore, error) {
	dbPath := filepath.Join(dataDir, "chats.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &ChatStore{db: db}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *ChatStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		image_url TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(user_id, chat_id, id);
	CREATE TABLE IF NOT EXISTS chats (
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		title TEXT NOT NULL,
		last_message TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, chat_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *ChatStore) Close() error {
	return s.db.Close()
}

// Append writes one turn and refreshes the conversation summary as a
// single logical append. When the turn carries no chat id, a new
// time-derived id is allocated. Returns the id the turn was stored
// under.
func (s *ChatStore) Append(userID string, turn model.Turn) (string, error) {
	chatID := turn.ChatID
	if chatID == "" {
		chatID = NewChatID()
	}

	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO messages (user_id, chat_id, role, content, image_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, chatID, turn.Role, turn.Content, nullString(turn.ImageURL), now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}

	// Summary upsert: the title sticks to the first message of the
	// conversation, the preview and timestamp track the latest one.
	_, err = tx.Exec(
		`INSERT INTO chats (user_id, chat_id, title, last_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, chat_id) DO UPDATE SET
			last_message = excluded.last_message,
			updated_at = excluded.updated_at`,
		userID, chatID, ChatTitle(turn.Content), Preview(turn.Content), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update chat summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit append: %w", err)
	}

	return chatID, nil
}

// Messages returns up to limit turns of one conversation, oldest first.
func (s *ChatStore) Messages(userID, chatID string, limit int) ([]model.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, image_url, chat_id, created_at
		 FROM messages
		 WHERE user_id = ? AND chat_id = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		userID, chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var imageURL sql.NullString
		if err := rows.Scan(&t.Role, &t.Content, &imageURL, &t.ChatID, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		t.ImageURL = imageURL.String
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

// Chats returns up to limit conversation summaries for a caller,
// most recently updated first.
func (s *ChatStore) Chats(userID string, limit int) ([]ChatSummary, error) {
	rows, err := s.db.Query(
		`SELECT chat_id, title, last_message, created_at, updated_at
		 FROM chats
		 WHERE user_id = ?
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.ChatID, &c.Title, &c.LastMessage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

// NewChatID allocates a time-derived conversation id. Millisecond
// resolution is enough to avoid same-caller collisions at the store's
// write granularity.
func NewChatID() string {
	return fmt.Sprintf("chat_%d", time.Now().UnixMilli())
}

// ChatTitle derives a conversation title from its first message.
func ChatTitle(content string) string {
	if content == "" {
		return "New Chat"
	}
	return Preview(content)
}

// Preview returns a short last-message preview for chat listings.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:50]) + "..."
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
