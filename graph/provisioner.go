// Package graph provisions the embedded per-repository, per-branch graph
// databases and hands out shared, reference-counted handles.
package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph/engine"
)

// ErrUnavailable wraps any failure to open a database file. The dispatcher
// maps it to a JSON-RPC internal error.
var ErrUnavailable = errors.New("database unavailable")

// Key isolates one graph file.
type Key struct {
	ClientProjectRoot string
	Repository        string
	Branch            string
}

// Provisioner resolves keys to opened database handles. Opens are serialized
// per key; unrelated keys never block each other.
type Provisioner struct {
	mu          sync.Mutex
	locks       map[Key]*sync.Mutex
	handles     map[Key]*Handle
	relativeDir string
	extension   string
	logger      *zap.Logger
}

// NewProvisioner creates a provisioner laying out files as
// <clientProjectRoot>/<relativeDir>/<branch-sanitized><extension>.
func NewProvisioner(relativeDir, extension string, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		locks:       make(map[Key]*sync.Mutex),
		handles:     make(map[Key]*Handle),
		relativeDir: relativeDir,
		extension:   extension,
		logger:      logger.Named("provisioner"),
	}
}

// Acquire resolves the key to an open handle, opening the database on first
// use. The caller must Release the handle when done with the request.
func (p *Provisioner) Acquire(ctx context.Context, clientProjectRoot, repository, branch string) (*Handle, error) {
	if clientProjectRoot == "" || repository == "" || branch == "" {
		return nil, fmt.Errorf("%w: clientProjectRoot, repository and branch are required", ErrUnavailable)
	}
	key := Key{ClientProjectRoot: clientProjectRoot, Repository: repository, Branch: branch}

	path, err := p.databasePath(key)
	if err != nil {
		return nil, err
	}

	keyLock := p.lockFor(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	handle, ok := p.handles[key]
	p.mu.Unlock()
	if ok {
		handle.acquire()
		return handle, nil
	}

	db, err := engine.Open(path)
	if err != nil {
		p.logger.Error("Failed to open database",
			zap.String("path", path),
			zap.String("repository", repository),
			zap.String("branch", branch),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	handle = newHandle(key, path, db, p.logger)
	handle.acquire()
	p.mu.Lock()
	p.handles[key] = handle
	p.mu.Unlock()

	p.logger.Info("Opened graph database",
		zap.String("path", path),
		zap.String("repository", repository),
		zap.String("branch", branch))
	return handle, nil
}

// lockFor returns the per-key open mutex, creating it on first use.
func (p *Provisioner) lockFor(key Key) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// databasePath derives the deterministic on-disk path and rejects branch
// names that would escape the client project root.
func (p *Provisioner) databasePath(key Key) (string, error) {
	sanitized := SanitizeBranch(key.Branch)
	if sanitized == "" {
		return "", fmt.Errorf("%w: branch name %q sanitizes to nothing", ErrUnavailable, key.Branch)
	}

	root := filepath.Clean(key.ClientProjectRoot)
	path := filepath.Join(root, p.relativeDir, sanitized+p.extension)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: database path escapes client project root", ErrUnavailable)
	}
	return path, nil
}

// SanitizeBranch normalizes a git branch name into a file-name component.
// Slashes become dashes; path-traversal sequences are stripped.
func SanitizeBranch(branch string) string {
	s := strings.ReplaceAll(branch, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "")
	s = strings.Trim(s, ". ")
	return s
}

// HandleCount returns the number of open handles.
func (p *Provisioner) HandleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// CloseAll waits for in-flight work to release the handles, bounded by the
// context deadline, then closes every database.
func (p *Provisioner) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	handles := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		handles = append(handles, h)
	}
	p.handles = make(map[Key]*Handle)
	p.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.drain(ctx); err != nil {
			p.logger.Warn("Closing database with in-flight work", zap.String("path", h.Path), zap.Error(err))
		}
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.logger.Info("Closed all graph databases", zap.Int("count", len(handles)))
	return firstErr
}

// drainPollInterval is how often CloseAll re-checks handle refcounts.
const drainPollInterval = 50 * time.Millisecond
