package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/nacl/secretbox"
)

const cookieSlotPrefix = "slot:"

// CookieSlots keeps the session slots inside the browser's signed cookie.
// Writes are buffered in the gorilla session and emitted by Flush.
type CookieSlots struct {
	session *sessions.Session
	r       *http.Request
	w       http.ResponseWriter
	dirty   bool
}

func NewCookieSlots(session *sessions.Session, r *http.Request, w http.ResponseWriter) *CookieSlots {
	return &CookieSlots{session: session, r: r, w: w}
}

func (c *CookieSlots) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.session.Values[cookieSlotPrefix+key].(string)
	return v, ok, nil
}

func (c *CookieSlots) Set(_ context.Context, key, value string) error {
	c.session.Values[cookieSlotPrefix+key] = value
	c.dirty = true
	return nil
}

func (c *CookieSlots) Delete(_ context.Context, key string) error {
	delete(c.session.Values, cookieSlotPrefix+key)
	c.dirty = true
	return nil
}

func (c *CookieSlots) Flush(_ context.Context) error {
	if !c.dirty {
		return nil
	}
	c.dirty = false
	return c.session.Save(c.r, c.w)
}

// FileSlots keeps the slots of one profile in a JSON document on disk. With a
// key the document is sealed with NaCl secretbox (nonce prefixed).
// Each call re-reads the file so that separate processes observe each other's
// writes; there is no cross-process locking.
type FileSlots struct {
	mu   sync.Mutex
	path string
	key  *[32]byte
}

// NewFileSlots places the document at dir/<profile>.session. An empty secret
// stores it in the clear (file mode 0600).
func NewFileSlots(dir, profile, secret string) *FileSlots {
	if profile == "" {
		profile = "default"
	}
	fs := &FileSlots{path: filepath.Join(dir, profile+".session")}
	if secret != "" {
		k := sha256.Sum256([]byte(secret))
		fs.key = &k
	}
	return fs
}

func (f *FileSlots) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (f *FileSlots) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		// An unreadable document is replaced rather than blocking the write.
		m = map[string]string{}
	}
	m[key] = value
	return f.write(m)
}

func (f *FileSlots) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		m = map[string]string{}
	}
	if _, ok := m[key]; !ok && err == nil {
		return nil
	}
	delete(m, key)
	return f.write(m)
}

func (f *FileSlots) read() (map[string]string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if f.key != nil {
		if b, err = f.open(b); err != nil {
			return nil, err
		}
	}
	m := map[string]string{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return m, nil
}

func (f *FileSlots) write(m map[string]string) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if f.key != nil {
		if b, err = f.seal(b); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileSlots) seal(plain []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, f.key), nil
}

func (f *FileSlots) open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24+secretbox.Overhead {
		return nil, errors.New("sealed session file is truncated")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, f.key)
	if !ok {
		return nil, errors.New("sealed session file cannot be opened with this key")
	}
	return plain, nil
}
