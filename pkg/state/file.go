package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON document per stack in a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

type stackDocument struct {
	Stack     string     `json:"stack"`
	Resources []Resource `json:"resources"`
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the file a stack is stored in. Distinct stack names always
// map to distinct files, even on case-insensitive filesystems.
func (f *FileStore) Path(stack string) string {
	return filepath.Join(f.dir, stackFileName(stack)+".json")
}

// stackFileName keeps lowercase letters, digits and dashes and escapes every
// other byte as _XX, so the mapping is reversible.
func stackFileName(stack string) string {
	var b strings.Builder
	for i := 0; i < len(stack); i++ {
		c := stack[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02x", c)
	}
	return b.String()
}

func (f *FileStore) Load(_ context.Context, stack string) ([]Resource, error) {
	if stack == "" {
		return nil, ErrStackRequired
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read(stack)
	if err != nil {
		return nil, err
	}
	sortResources(doc.Resources)
	return doc.Resources, nil
}

func (f *FileStore) Put(_ context.Context, resource Resource) error {
	if resource.Stack == "" {
		return ErrStackRequired
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read(resource.Stack)
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Resources {
		if doc.Resources[i].NodeID == resource.NodeID {
			doc.Resources[i] = resource
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Resources = append(doc.Resources, resource)
	}
	return f.write(doc)
}

func (f *FileStore) Delete(_ context.Context, stack, nodeID string) error {
	if stack == "" {
		return ErrStackRequired
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read(stack)
	if err != nil {
		return err
	}
	kept := doc.Resources[:0]
	for _, r := range doc.Resources {
		if r.NodeID != nodeID {
			kept = append(kept, r)
		}
	}
	doc.Resources = kept
	return f.write(doc)
}

func (f *FileStore) read(stack string) (stackDocument, error) {
	raw, err := os.ReadFile(f.Path(stack))
	if errors.Is(err, fs.ErrNotExist) {
		return stackDocument{Stack: stack}, nil
	}
	if err != nil {
		return stackDocument{}, fmt.Errorf("read state for %s: %w", stack, err)
	}
	var doc stackDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return stackDocument{}, fmt.Errorf("decode state for %s: %w", stack, err)
	}
	if doc.Stack != "" && doc.Stack != stack {
		return stackDocument{}, fmt.Errorf("state file %s belongs to stack %q, not %q", f.Path(stack), doc.Stack, stack)
	}
	doc.Stack = stack
	return doc, nil
}

func (f *FileStore) write(doc stackDocument) error {
	sortResources(doc.Resources)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", doc.Stack, err)
	}
	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := f.Path(doc.Stack)
	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write state for %s: %w", doc.Stack, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write state for %s: %w", doc.Stack, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write state for %s: %w", doc.Stack, err)
	}
	return os.Rename(tmp.Name(), path)
}
