// Package archive keeps a git history of note content. Before a
// consolidation overwrites a note, the prior content is committed to the
// owning user's repository so nothing is ever lost silently.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Revision is one archived state of a note.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service manages one plain git repository per user under baseDir. Each
// note lives at notes/<note_id>.md inside that repository.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ArchiveNote commits the note's current title and content to the user's
// repository. sourceRef names what triggered the snapshot and ends up in
// the commit message.
func (s *Service) ArchiveNote(userID, noteID, title, content, sourceRef string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(userID)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	rel := filepath.Join("notes", noteID+".md")
	abs := filepath.Join(worktree.Filesystem.Root(), rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create notes dir: %w", err)
	}

	body := "# " + title + "\n\n" + strings.TrimRight(content, "\n") + "\n"
	if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write note file: %w", err)
	}

	if _, err := worktree.Add(rel); err != nil {
		return fmt.Errorf("git add note: %w", err)
	}

	message := fmt.Sprintf("Archive %q before consolidation (%s)", title, sourceRef)
	_, err = worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(),
	})
	if err != nil {
		return fmt.Errorf("commit note archive: %w", err)
	}
	return nil
}

// History returns the archived revisions touching noteID, newest first.
// A user with no repository yet has no history.
func (s *Service) History(userID, noteID string, limit int) ([]Revision, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(userID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	rel := filepath.ToSlash(filepath.Join("notes", noteID+".md"))
	iter, err := repo.Log(&git.LogOptions{
		FileName: &rel,
	})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	revisions := make([]Revision, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		revisions = append(revisions, Revision{
			Hash:      commitObj.Hash.String()[:7],
			Message:   commitObj.Message,
			CreatedAt: commitObj.Author.When,
		})
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return revisions, nil
}

func (s *Service) repoPath(userID string) string {
	return filepath.Join(s.baseDir, userID)
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[userID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[userID] = lock
	return lock
}

func (s *Service) openOrInit(userID string) (*git.Repository, error) {
	path := s.repoPath(userID)

	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	readme := filepath.Join(path, "README.md")
	if err := os.WriteFile(readme, []byte("# Note archive\n\nSnapshots taken before consolidations.\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write readme: %w", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		return nil, fmt.Errorf("git add readme: %w", err)
	}
	hash, err := worktree.Commit("Initialize note archive", &git.CommitOptions{Author: signature()})
	if err != nil {
		return nil, fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  "Arbor",
		Email: "arbor@localhost",
		When:  time.Now(),
	}
}
