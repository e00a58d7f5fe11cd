package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kisscoffee/site/internal/settings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	documentFile = "settings.json"
	branchName   = "main"
)

var ErrDisabled = errors.New("revision history is disabled")

type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archive records every accepted settings document as a commit in a local git
// repository. A zero directory disables it.
type Archive struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Archive {
	return &Archive{dir: dir, now: time.Now}
}

func (a *Archive) Enabled() bool {
	return a != nil && a.dir != ""
}

// Record writes doc to the repository and commits it on main.
func (a *Archive) Record(doc settings.Settings, author, message string) (Revision, error) {
	if !a.Enabled() {
		return Revision{}, ErrDisabled
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := a.openOrInit()
	if err != nil {
		return Revision{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(doc.Normalized(), "", "  ")
	if err != nil {
		return Revision{}, fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.dir, documentFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", documentFile, err)
	}
	if _, err := worktree.Add(documentFile); err != nil {
		return Revision{}, fmt.Errorf("git add settings: %w", err)
	}

	if author == "" {
		author = "Kiss Coffee"
	}
	if message == "" {
		message = "Update settings"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@kisscoffee.local", sanitizeEmail(author)),
			When:  a.now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit settings: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), nil
}

// History lists revisions newest first. A limit of zero or less lists all of
// them.
func (a *Archive) History(limit int) ([]Revision, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := git.PlainOpen(a.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Content returns the settings document archived by the revision hash, which
// may be abbreviated.
func (a *Archive) Content(hash string) (settings.Settings, error) {
	if !a.Enabled() {
		return settings.Settings{}, ErrDisabled
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	repo, err := git.PlainOpen(a.dir)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return settings.Settings{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSettingsFromCommit(commitObj)
}

func (a *Archive) openOrInit() (*git.Repository, error) {
	repo, err := git.PlainOpen(a.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(a.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branchName))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branchName, err)
	}
	return repo, nil
}

func readSettingsFromCommit(commitObj *object.Commit) (settings.Settings, error) {
	file, err := commitObj.File(documentFile)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load %s from commit: %w", documentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return settings.Settings{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("read content bytes: %w", err)
	}
	var doc settings.Settings
	if err := json.Unmarshal(raw, &doc); err != nil {
		return settings.Settings{}, fmt.Errorf("decode commit content: %w", err)
	}
	return doc.Normalized(), nil
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "owner"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
