package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"kiln/internal/backend/x64"
	"kiln/internal/ir"
	"kiln/internal/types"
)

// Bump when asmPayload changes shape; stale entries become misses.
const asmCacheSchemaVersion uint16 = 1

// Digest keys cache entries by function content and target.
type Digest [sha256.Size]byte

// AsmCache stores emitted assembly keyed by a digest of the function's IR
// and the target name. Thread-safe for concurrent access.
type AsmCache struct {
	mu  sync.RWMutex
	dir string
}

type asmPayload struct {
	Schema uint16
	Target string

	Symbol      string
	Global      bool
	Text        []byte
	Relocations []string

	EmittedAt int64
}

// OpenAsmCache initializes the cache at the standard user cache location.
func OpenAsmCache(app string) (*AsmCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &AsmCache{dir: dir}, nil
}

// FuncKey digests a function's printed IR together with the target name.
// The printed form covers types, so any change inference could observe
// changes the key.
func FuncKey(f *ir.Func, tin *types.Interner, targetName string) Digest {
	h := sha256.New()
	fmt.Fprintf(h, "schema:%d\x00target:%s\x00", asmCacheSchemaVersion, targetName)
	h.Write([]byte(ir.Print(f, tin)))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func (c *AsmCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "asm", hex.EncodeToString(key[:])+".mp")
}

// Put serializes an artifact under the key, writing to a temp file first so
// concurrent readers never see a torn entry.
func (c *AsmCache) Put(key Digest, targetName string, art *x64.Artifact) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	payload := asmPayload{
		Schema:      asmCacheSchemaVersion,
		Target:      targetName,
		Symbol:      art.Symbol,
		Global:      art.Global,
		Text:        art.Text,
		Relocations: art.Relocations,
		EmittedAt:   time.Now().Unix(),
	}
	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

// Get looks a key up. Schema or target mismatches count as misses, not
// errors.
func (c *AsmCache) Get(key Digest, targetName string) (*x64.Artifact, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload asmPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, err
	}
	if payload.Schema != asmCacheSchemaVersion || payload.Target != targetName {
		return nil, false, nil
	}
	return &x64.Artifact{
		Symbol:      payload.Symbol,
		Global:      payload.Global,
		Text:        payload.Text,
		Relocations: payload.Relocations,
	}, true, nil
}

// DropAll removes every cached entry, useful after format changes.
func (c *AsmCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "asm"))
}
