package versionit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

var testTime = time.Date(2025, time.October, 10, 14, 30, 45, 0, time.UTC)

func testClock() time.Time { return testTime }

// fakeGit is a GitInfo with canned answers.
type fakeGit struct {
	branch  string
	commit  string
	full    string
	tags    []string
	commits []string
	err     error
}

func (f *fakeGit) CurrentBranch() (string, error)      { return f.branch, f.err }
func (f *fakeGit) CurrentCommitShort() (string, error) { return f.commit, f.err }
func (f *fakeGit) CurrentCommitFull() (string, error)  { return f.full, f.err }
func (f *fakeGit) LatestTags() ([]string, error)       { return f.tags, f.err }
func (f *fakeGit) CommitsSince(string) ([]string, error) {
	return f.commits, f.err
}

var errNoRepo = errors.New("not a git repository")

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	storage := memory.NewStorage()
	fs := memfs.New()
	return git.Init(storage, fs)
}

// testRepoFSCreate creates a new filesystem-based git repository for testing
func testRepoFSCreate(path string) (*git.Repository, error) {
	fs := osfs.New(path)
	storage := filesystem.NewStorage(osfs.New(filepath.Join(path, ".git")), cache.NewObjectLRUDefault())
	return git.Init(storage, fs)
}

// testRepoCommit writes a file and commits it, returning the commit hash
func testRepoCommit(repo *git.Repository, filename, content, message string) (plumbing.Hash, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if err := writeFile(workTree.Filesystem, filename, content); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := workTree.Add(filename); err != nil {
		return plumbing.ZeroHash, err
	}
	return workTree.Commit(message, &git.CommitOptions{Author: testSignature})
}

// testRepoSingleCommit adds a single commit to the repository and returns the commit hash
func testRepoSingleCommit(repo *git.Repository) (plumbing.Hash, error) {
	return testRepoCommit(repo, "test.txt", "Hello world", "Initial commit")
}

// testRepoWithTags commits once per tag and tags each commit in order
func testRepoWithTags(repo *git.Repository, tags []string) (*git.Repository, error) {
	for _, tag := range tags {
		hash, err := testRepoCommit(repo, "file_"+filepath.Base(tag)+".txt", "Content for "+tag, "Commit for "+tag)
		if err != nil {
			return nil, err
		}
		if _, err := repo.CreateTag(tag, hash, nil); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}

// writeTestFile writes content below dir and returns the full path
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
