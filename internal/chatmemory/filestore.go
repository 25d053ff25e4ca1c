package chatmemory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore persists chat memory as one directory per session, holding a
// single append-only messages.jsonl filtered by user_id on read.
//
// Layout: <baseDir>/<session_id>/messages.jsonl
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (fs *FileStore) messagesPath(sessionID string) string {
	return filepath.Join(fs.baseDir, sessionID, "messages.jsonl")
}

func generateMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.New().String()[:12], "-", "")
}

// SaveMessage appends a message, silently dropping empty content or system role.
func (fs *FileStore) SaveMessage(userID, sessionID string, role Role, content, intent, agent string, metadata map[string]string) error {
	if userID == "" {
		slog.Warn("chatmemory: SaveMessage called without user_id", "session_id", sessionID)
		return nil
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if role != RoleStudent && role != RoleAssistant {
		return nil
	}

	msg := Message{
		ID:        generateMessageID(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Intent:    intent,
		Agent:     agent,
		Metadata:  metadata,
		Ts:        time.Now(),
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	path := fs.messagesPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// SessionHistory returns the most recent limit messages for (userID, sessionID).
func (fs *FileStore) SessionHistory(userID, sessionID string, limit int) ([]Message, error) {
	if userID == "" {
		slog.Warn("chatmemory: SessionHistory called without user_id", "session_id", sessionID)
		return nil, nil
	}

	all, err := fs.loadAll(sessionID)
	if err != nil {
		return nil, err
	}

	filtered := filterByUser(all, userID)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// UserContext formats the last maxMessages turns as a prompt-ready string.
func (fs *FileStore) UserContext(userID, sessionID string, maxMessages int) (string, error) {
	if userID == "" {
		slog.Warn("chatmemory: UserContext called without user_id", "session_id", sessionID)
		return "", nil
	}
	msgs, err := fs.SessionHistory(userID, sessionID, maxMessages)
	if err != nil {
		return "", err
	}
	return FormatUserContext(msgs), nil
}

// SearchConversation performs a substring search over a user's own content.
func (fs *FileStore) SearchConversation(userID, query string, limit int) ([]Message, error) {
	if userID == "" {
		slog.Warn("chatmemory: SearchConversation called without user_id")
		return nil, nil
	}

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list session dirs: %w", err)
	}

	needle := strings.ToLower(query)
	var results []Message
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		msgs, err := fs.loadAll(entry.Name())
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.UserID != userID {
				continue
			}
			if strings.Contains(strings.ToLower(m.Content), needle) {
				results = append(results, m)
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Ts.After(results[j].Ts) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteSession removes every message owned by userID within sessionID.
// Messages owned by other users in the same session are preserved.
func (fs *FileStore) DeleteSession(userID, sessionID string) error {
	if userID == "" {
		slog.Warn("chatmemory: DeleteSession called without user_id", "session_id", sessionID)
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	all, err := fs.loadAllLocked(sessionID)
	if err != nil {
		return err
	}

	kept := all[:0]
	for _, m := range all {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}

	path := fs.messagesPath(sessionID)
	if len(kept) == 0 {
		return os.Remove(path)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create tmp messages file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, m := range kept {
		if err := enc.Encode(m); err != nil {
			f.Close()
			return fmt.Errorf("rewrite messages: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (fs *FileStore) loadAll(sessionID string) ([]Message, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.loadAllLocked(sessionID)
}

func (fs *FileStore) loadAllLocked(sessionID string) ([]Message, error) {
	f, err := os.Open(fs.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var messages []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // skip corrupted lines
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return messages, nil
}

func filterByUser(msgs []Message, userID string) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}
