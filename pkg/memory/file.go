package memory

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// FileStore keeps one JSON Lines file per session under a directory. Appends
// open the file with O_APPEND, so existing lines are never rewritten.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("memory: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file backing a session.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.dir, sanitize(sessionID)+".jsonl")
}

// sanitize maps a session ID to a safe file name. Characters outside
// [A-Za-z0-9._-] become '_' and a leading dot is escaped; an altered ID gets
// a short hash suffix so distinct IDs never share a file.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if strings.HasPrefix(name, ".") {
		name = "_" + name
	}
	if name != id {
		sum := sha256.Sum256([]byte(id))
		name += "-" + hex.EncodeToString(sum[:4])
	}
	return name
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, sessionID string) ([]message.Message, error) {
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return []message.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: open session %q: %w", sessionID, err)
	}
	defer func() { _ = f.Close() }()

	var msgs []message.Message
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		m, err := decode(sessionID, len(msgs), line)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("memory: read session %q: %w", sessionID, err)
	}

	if msgs == nil {
		msgs = []message.Message{}
	}
	return msgs, nil
}

// Append implements Store. All lines of one call are written with a single
// write.
func (s *FileStore) Append(_ context.Context, sessionID string, msgs ...message.Message) error {
	if err := checkSession(sessionID); err != nil {
		return err
	}

	encoded, err := encodeAll(persistable(msgs))
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, line := range encoded {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(sessionID), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open session %q: %w", sessionID, err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("memory: append session %q: %w", sessionID, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("memory: close session %q: %w", sessionID, err)
	}
	return nil
}

// Sessions implements Lister. IDs that sanitize changed are listed under
// their file name.
func (s *FileStore) Sessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("memory: list sessions: %w", err)
	}

	var out []SessionInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("memory: list sessions: %w", err)
		}
		lines := 0
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) > 0 {
				lines++
			}
		}
		if lines == 0 {
			continue
		}

		out = append(out, SessionInfo{ID: strings.TrimSuffix(name, ".jsonl"), Messages: lines, LastSeq: int64(lines)})
	}
	return out, nil
}
