package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"eventlog/api/internal/blockdoc"
)

const (
	snapshotFile = "eventlog.json"
	branchName   = "main"
)

var ErrNoHistory = errors.New("record has no history")

// Snapshot is what gets committed for an EventLog version.
type Snapshot struct {
	Document    blockdoc.Document `json:"document"`
	PlainText   string            `json:"plainText"`
	Fingerprint string            `json:"fingerprint"`
	CreatedAt   int64             `json:"createdAt,omitempty"`
	UpdatedAt   int64             `json:"updatedAt,omitempty"`
	Creator     string            `json:"creatorOrigin,omitempty"`
	Modifier    string            `json:"modifierOrigin,omitempty"`
}

func SnapshotOf(log blockdoc.EventLog) Snapshot {
	return Snapshot{
		Document:    log.Document,
		PlainText:   log.PlainText,
		Fingerprint: log.Fingerprint,
		CreatedAt:   log.CreatedAt,
		UpdatedAt:   log.UpdatedAt,
		Creator:     log.CreatorOrigin,
		Modifier:    log.ModifierOrigin,
	}
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
	Changed   int       `json:"changed"`
}

// Service keeps one git repository per record under baseDir.
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

// Record commits log for recordID when its fingerprint differs from the
// head snapshot. The returned bool reports whether a commit was made.
func (s *Service) Record(recordID string, log blockdoc.EventLog, author, message string, when time.Time) (CommitInfo, bool, error) {
	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(recordID)
	if err != nil {
		return CommitInfo{}, false, err
	}

	next := SnapshotOf(log)
	var parent *Snapshot
	if head, commitObj, err := headSnapshot(repo); err == nil {
		if head.Fingerprint == next.Fingerprint {
			return toCommitInfo(commitObj), false, nil
		}
		parent = &head
	} else if !errors.Is(err, ErrNoHistory) {
		return CommitInfo{}, false, err
	}

	hash, err := commitSnapshot(repo, next, author, message, when)
	if err != nil {
		return CommitInfo{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}

	info := toCommitInfo(commitObj)
	if parent != nil {
		info.Added, info.Removed, info.Changed = countChanges(Diff(*parent, next))
	} else {
		info.Added = len(next.Document.Blocks)
	}
	return info, true, nil
}

// Head returns the latest snapshot for recordID, or ErrNoHistory.
func (s *Service) Head(recordID string) (Snapshot, CommitInfo, error) {
	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(recordID)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	snapshot, commitObj, err := headSnapshot(repo)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	return snapshot, toCommitInfo(commitObj), nil
}

func (s *Service) SnapshotByHash(recordID, hash string) (Snapshot, error) {
	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(recordID)
	if err != nil {
		return Snapshot{}, err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshotFromCommit(commitObj)
}

// History lists commits newest first. A record that was never committed
// has an empty history.
func (s *Service) History(recordID string, limit int) ([]CommitInfo, error) {
	lock := s.recordLock(recordID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(recordID)
	if errors.Is(err, ErrNoHistory) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		info := toCommitInfo(commitObj)
		if current, err := readSnapshotFromCommit(commitObj); err == nil {
			if parentObj, err := commitObj.Parent(0); err == nil {
				if previous, err := readSnapshotFromCommit(parentObj); err == nil {
					info.Added, info.Removed, info.Changed = countChanges(Diff(previous, current))
				}
			} else {
				info.Added = len(current.Document.Blocks)
			}
		}
		items = append(items, info)
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

func (s *Service) repoPath(recordID string) string {
	return filepath.Join(s.baseDir, recordID)
}

func (s *Service) recordLock(recordID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[recordID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[recordID] = lock
	return lock
}

func (s *Service) openRepo(recordID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(recordID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) ensureRepo(recordID string) (*git.Repository, error) {
	repo, err := s.openRepo(recordID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrNoHistory) {
		return nil, err
	}

	path := s.repoPath(recordID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branchName))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branchName, err)
	}
	return repo, nil
}

func headSnapshot(repo *git.Repository) (Snapshot, *object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return Snapshot{}, nil, ErrNoHistory
	}
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("load commit object: %w", err)
	}
	snapshot, err := readSnapshotFromCommit(commitObj)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snapshot, commitObj, nil
}

func commitSnapshot(repo *git.Repository, snapshot Snapshot, author, message string, when time.Time) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}

	if author == "" {
		author = "eventlog"
	}
	if when.IsZero() {
		when = time.Now()
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@eventlog.local", sanitizeEmail(author)),
			When:  when,
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit snapshot: %w", err)
	}
	return snapshot, nil
}

// BlockChange describes one block that differs between two snapshots.
type BlockChange struct {
	BlockID string `json:"blockId"`
	Change  string `json:"change"` // added, removed or changed
	Before  string `json:"before,omitempty"`
	After   string `json:"after,omitempty"`
}

// Diff compares snapshots block by block, keyed on block id.
func Diff(from, to Snapshot) []BlockChange {
	before := make(map[string]blockdoc.Block, len(from.Document.Blocks))
	for _, b := range from.Document.Blocks {
		before[b.ID] = b
	}
	after := make(map[string]blockdoc.Block, len(to.Document.Blocks))
	for _, b := range to.Document.Blocks {
		after[b.ID] = b
	}

	result := make([]BlockChange, 0)
	for _, b := range to.Document.Blocks {
		old, ok := before[b.ID]
		switch {
		case !ok:
			result = append(result, BlockChange{BlockID: b.ID, Change: "added", After: b.Text()})
		case old.Text() != b.Text():
			result = append(result, BlockChange{BlockID: b.ID, Change: "changed", Before: old.Text(), After: b.Text()})
		}
	}
	for _, b := range from.Document.Blocks {
		if _, ok := after[b.ID]; !ok {
			result = append(result, BlockChange{BlockID: b.ID, Change: "removed", Before: b.Text()})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Change < result[j].Change
	})
	return result
}

func countChanges(changes []BlockChange) (added, removed, changed int) {
	for _, c := range changes {
		switch c.Change {
		case "added":
			added++
		case "removed":
			removed++
		default:
			changed++
		}
	}
	return added, removed, changed
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
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
		return "user"
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
