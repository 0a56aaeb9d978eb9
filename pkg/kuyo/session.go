// session.go creates, restores and clears the engine session.

package kuyo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Version is the SDK version reported in the session user agent.
const Version = "0.1.0"

// SessionKey is the store key holding the serialized current session.
const SessionKey = "kuyo_session"

// SessionStore is a scoped key-value store used to persist the session handle.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// MemoryStore is an in-process SessionStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var processStore = NewMemoryStore()

// ProcessStore returns the store shared by every engine in this process.
// It is the default, so an engine re-created in the same process resumes the
// session of its predecessor until that session is cleared by Destroy.
func ProcessStore() *MemoryStore {
	return processStore
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// FileStore persists each key as a JSON file inside a directory, so a session
// survives process restarts.
type FileStore struct {
	dir string
}

var _ SessionStore = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get reads the file for key. A missing file is reported as absent, not as an error.
func (f *FileStore) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (f *FileStore) Set(key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	return os.WriteFile(f.path(key), value, 0o644)
}

func (f *FileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// newSession builds a fresh session started at now.
func newSession(env Environment, now time.Time) Session {
	return Session{
		ID:          newSessionID(now),
		Environment: env,
		StartedAt:   now.UnixMilli(),
		UserAgent:   userAgent(),
		IPAddress:   localIPAddress(),
	}
}

func newSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "kuyo_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + random[:16]
}

func userAgent() string {
	return fmt.Sprintf("kuyo-go/%s (%s/%s; %s)", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// localIPAddress returns the first non-loopback IPv4 interface address.
func localIPAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}

// restoreSession loads the persisted session, or creates and persists a new one.
// Store failures degrade to an unpersisted session; they are returned for logging.
func restoreSession(store SessionStore, env Environment, now time.Time) (Session, bool, error) {
	data, ok, err := store.Get(SessionKey)
	if err == nil && ok {
		var s Session
		if jsonErr := json.Unmarshal(data, &s); jsonErr == nil && s.ID != "" {
			return s, true, nil
		} else if jsonErr != nil {
			err = fmt.Errorf("decode stored session: %w", jsonErr)
		}
	}

	s := newSession(env, now)
	data, marshalErr := json.Marshal(s)
	if marshalErr != nil {
		return s, false, errors.Join(err, marshalErr)
	}
	if setErr := store.Set(SessionKey, data); setErr != nil {
		err = errors.Join(err, fmt.Errorf("persist session: %w", setErr))
	}
	return s, false, err
}
