package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			run_id TEXT,
			run_status TEXT,
			user_text TEXT NOT NULL,
			reply_text TEXT,
			draft TEXT,
			outcome TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			turn_id TEXT,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_conversation ON events(conversation_id, ts)`,
		`CREATE TABLE IF NOT EXISTS missions (
			record_id TEXT PRIMARY KEY,
			conversation_id TEXT,
			source TEXT NOT NULL,
			service TEXT NOT NULL,
			description TEXT NOT NULL,
			price REAL NOT NULL,
			client_email TEXT NOT NULL,
			status TEXT NOT NULL,
			invoice_status TEXT NOT NULL,
			notified_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_conversation ON missions(conversation_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetConversation retrieves a conversation binding by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, thread_id, created_at FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&conv.ConversationID, &conv.ThreadID, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// BindConversation inserts the binding unless one exists, then returns the
// stored row.
func (s *SQLiteStore) BindConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (conversation_id, thread_id, created_at) VALUES (?, ?, ?)`,
		conv.ConversationID, conv.ThreadID, createdAt); err != nil {
		return nil, err
	}

	stored, err := s.GetConversation(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("conversation %s not stored", conv.ConversationID)
	}
	return stored, nil
}

// CreateTurn creates a new turn.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *domain.Turn) error {
	draft, err := marshalDraft(turn.Draft)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, conversation_id, thread_id, run_id, run_status, user_text, reply_text, draft, outcome, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.ConversationID, turn.ThreadID, nullString(turn.RunID), nullString(string(turn.RunStatus)),
		turn.UserText, nullString(turn.ReplyText), draft, turn.Outcome, turn.CreatedAt, nullTime(turn.CompletedAt))
	return err
}

// UpdateTurn overwrites the mutable fields of a turn.
func (s *SQLiteStore) UpdateTurn(ctx context.Context, turn *domain.Turn) error {
	draft, err := marshalDraft(turn.Draft)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE turns SET run_id = ?, run_status = ?, reply_text = ?, draft = ?, outcome = ?, completed_at = ? WHERE turn_id = ?`,
		nullString(turn.RunID), nullString(string(turn.RunStatus)), nullString(turn.ReplyText), draft,
		turn.Outcome, nullTime(turn.CompletedAt), turn.TurnID)
	return err
}

const turnColumns = `turn_id, conversation_id, thread_id, run_id, run_status, user_text, reply_text, draft, outcome, created_at, completed_at`

// GetTurn retrieves a turn by ID.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE turn_id = ?`, turnID)
	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return turn, err
}

// GetLatestTurn retrieves the most recent turn of a conversation.
func (s *SQLiteStore) GetLatestTurn(ctx context.Context, conversationID string) (*domain.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+turnColumns+` FROM turns WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		conversationID)
	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return turn, err
}

// ListTurns returns the latest turns of a conversation, oldest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE conversation_id = ? ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, *turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTurn(row rowScanner) (*domain.Turn, error) {
	var turn domain.Turn
	var runID, runStatus, reply, draft sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&turn.TurnID, &turn.ConversationID, &turn.ThreadID, &runID, &runStatus,
		&turn.UserText, &reply, &draft, &turn.Outcome, &turn.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	turn.RunID = runID.String
	turn.RunStatus = domain.RunStatus(runStatus.String)
	turn.ReplyText = reply.String
	if draft.Valid && draft.String != "" {
		var d domain.Draft
		if err := json.Unmarshal([]byte(draft.String), &d); err != nil {
			return nil, fmt.Errorf("failed to decode draft: %w", err)
		}
		turn.Draft = &d
	}
	if completedAt.Valid {
		turn.CompletedAt = &completedAt.Time
	}
	return &turn, nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, conversation_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.ConversationID, nullString(event.TurnID), event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a conversation.
func (s *SQLiteStore) GetEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, conversation_id, turn_id, ts, type, payload FROM events WHERE conversation_id = ?`
	args := []interface{}{conversationID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var turnID, payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.ConversationID, &turnID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		event.TurnID = turnID.String
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CreateMission records a mission submitted to the tabular store.
func (s *SQLiteStore) CreateMission(ctx context.Context, entry *domain.MissionEntry) error {
	m := entry.Mission
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO missions (record_id, conversation_id, source, service, description, price, client_email, status, invoice_status, notified_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RecordID, nullString(entry.ConversationID), entry.Source, m.Service, m.Description, m.Price,
		m.ClientEmail, m.Status, m.InvoiceStatus, nullTime(entry.NotifiedAt), entry.CreatedAt)
	return err
}

// GetMission retrieves a mission by record ID.
func (s *SQLiteStore) GetMission(ctx context.Context, recordID string) (*domain.MissionEntry, error) {
	var entry domain.MissionEntry
	var convID sql.NullString
	var notifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT record_id, conversation_id, source, service, description, price, client_email, status, invoice_status, notified_at, created_at
		 FROM missions WHERE record_id = ?`,
		recordID).Scan(&entry.RecordID, &convID, &entry.Source, &entry.Mission.Service, &entry.Mission.Description,
		&entry.Mission.Price, &entry.Mission.ClientEmail, &entry.Mission.Status, &entry.Mission.InvoiceStatus,
		&notifiedAt, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.ConversationID = convID.String
	if notifiedAt.Valid {
		entry.NotifiedAt = &notifiedAt.Time
	}
	return &entry, nil
}

// UpdateMissionStatus updates the status fields of a mission. Empty values
// leave the column unchanged.
func (s *SQLiteStore) UpdateMissionStatus(ctx context.Context, recordID, status, invoiceStatus string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE missions SET status = COALESCE(?, status), invoice_status = COALESCE(?, invoice_status) WHERE record_id = ?`,
		nullString(status), nullString(invoiceStatus), recordID)
	return err
}

// MarkMissionNotified records when the confirmation was delivered.
func (s *SQLiteStore) MarkMissionNotified(ctx context.Context, recordID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE missions SET notified_at = ? WHERE record_id = ?`,
		at, recordID)
	return err
}

func marshalDraft(d *domain.Draft) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode draft: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
