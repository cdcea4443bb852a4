// The tag walking in this file is adapted from pulumictl
// (https://github.com/pulumi/pulumictl), licensed under the Apache License 2.0.

package versionit

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const shortHashLength = 7

// Repository is a git repository backed by go-git.
type Repository struct {
	repo *git.Repository
}

var _ GitInfo = (*Repository)(nil)

// OpenRepository opens the git repository containing path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, err
	}
	return &Repository{repo: repo}, nil
}

// NewRepository wraps an already opened go-git repository.
func NewRepository(repo *git.Repository) *Repository {
	return &Repository{repo: repo}
}

// CurrentBranch returns the short name of the checked out branch, or "HEAD"
// when HEAD is detached.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "HEAD", nil
	}
	return head.Name().Short(), nil
}

// CurrentCommitFull returns the full hash of HEAD.
func (r *Repository) CurrentCommitFull() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CurrentCommitShort returns the abbreviated hash of HEAD.
func (r *Repository) CurrentCommitShort() (string, error) {
	full, err := r.CurrentCommitFull()
	if err != nil {
		return "", err
	}
	return full[:shortHashLength], nil
}

// LatestTags returns the sorted names of the tags pointing at HEAD.
func (r *Repository) LatestTags() ([]string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	byCommit, err := r.tagsByCommit()
	if err != nil {
		return nil, err
	}
	tags := byCommit[head.Hash()]
	slices.Sort(tags)
	return tags, nil
}

// LatestVersionTag walks the first-parent history of HEAD and returns the
// version held by the nearest tag that parses under scheme. Module prefixes
// such as "sdk/v" are stripped. The boolean is false when no such tag exists.
func (r *Repository) LatestVersionTag(scheme Scheme) (string, bool, error) {
	byCommit, err := r.tagsByCommit()
	if err != nil {
		return "", false, err
	}

	var found string
	err = r.walkFirstParents(func(c *object.Commit) error {
		if v, ok := bestVersionTag(byCommit[c.Hash], scheme); ok {
			found = v
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// NearestTag returns the name of the closest tag on the first-parent history
// of HEAD, whatever it holds. When several tags share that commit the last in
// sort order wins. The boolean is false when no commit is tagged.
func (r *Repository) NearestTag() (string, bool, error) {
	byCommit, err := r.tagsByCommit()
	if err != nil {
		return "", false, err
	}

	var found string
	err = r.walkFirstParents(func(c *object.Commit) error {
		if tags := byCommit[c.Hash]; len(tags) > 0 {
			found = slices.Max(tags)
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// RootCommit returns the first commit of the first-parent history of HEAD.
func (r *Repository) RootCommit() (*object.Commit, error) {
	var root *object.Commit
	err := r.walkFirstParents(func(c *object.Commit) error {
		root = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

// walkFirstParents calls fn for HEAD and then each first parent, newest
// first. Returning storer.ErrStop from fn ends the walk without error.
func (r *Repository) walkFirstParents(fn func(*object.Commit) error) error {
	commit, err := r.HeadCommit()
	if err != nil {
		return err
	}
	for {
		if err := fn(commit); err != nil {
			if errors.Is(err, storer.ErrStop) {
				return nil
			}
			return err
		}
		if commit.NumParents() == 0 {
			return nil
		}
		parent, err := commit.Parent(0)
		if err != nil {
			return fmt.Errorf("walking history at %s: %w", commit.Hash.String()[:shortHashLength], err)
		}
		commit = parent
	}
}

// bestVersionTag picks the highest version among tags on a single commit.
func bestVersionTag(tags []string, scheme Scheme) (string, bool) {
	var (
		best    string
		bestSem semver.Version
	)
	for _, tag := range tags {
		v := stripModuleTagPrefixes(tag)
		if _, err := Parse(v, scheme); err != nil {
			continue
		}
		if scheme == SchemeSemantic {
			sem := semver.MustParse(v)
			if best == "" || sem.GT(bestSem) {
				best, bestSem = v, sem
			}
			continue
		}
		if v > best {
			best = v
		}
	}
	return best, best != ""
}

// tagsByCommit maps commit hashes to the short names of the tags pointing at
// them, following annotated tags to their target.
func (r *Repository) tagsByCommit() (map[plumbing.Hash][]string, error) {
	tags, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	out := make(map[plumbing.Hash][]string)
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		target := ref.Hash()
		obj, err := r.repo.TagObject(ref.Hash())
		switch {
		case err == nil:
			target = obj.Target
		case errors.Is(err, plumbing.ErrObjectNotFound):
			// Lightweight tag
		default:
			return err
		}
		out[target] = append(out[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}
	return out, nil
}

func subject(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(line)
}

func stripModuleTagPrefixes(tag string) string {
	_, versionComponent := path.Split(tag)
	return strings.TrimPrefix(versionComponent, "v")
}

// CommitsSince returns one-line summaries ("<short hash> <subject>") of the
// commits reachable from HEAD but not from ref, newest first. An empty ref
// returns the whole history.
func (r *Repository) CommitsSince(ref string) ([]string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	exclude := make(map[plumbing.Hash]bool)
	if ref != "" {
		hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", ref, err)
		}
		base, err := r.repo.CommitObject(*hash)
		if err != nil {
			return nil, fmt.Errorf("getting commit object: %w", err)
		}
		err = object.NewCommitPreorderIter(base, nil, nil).ForEach(func(c *object.Commit) error {
			exclude[c.Hash] = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking history of %s: %w", ref, err)
		}
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	var commits []string
	err = iter.ForEach(func(c *object.Commit) error {
		if exclude[c.Hash] {
			return nil
		}
		commits = append(commits, c.Hash.String()[:shortHashLength]+" "+subject(c.Message))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return commits, nil
}

// HeadCommit returns the commit object HEAD points at.
func (r *Repository) HeadCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	return r.repo.CommitObject(head.Hash())
}

// IsDirty reports whether the worktree has uncommitted changes, untracked
// files included.
func (r *Repository) IsDirty() (bool, error) {
	workTree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}
	return !status.IsClean(), nil
}

// CommitChanges stages every change in the worktree and commits it. It
// returns false without committing when there is nothing to commit.
func (r *Repository) CommitChanges(message string) (bool, error) {
	dirty, err := r.IsDirty()
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	workTree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	if err := workTree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, fmt.Errorf("staging changes: %w", err)
	}
	if _, err := workTree.Commit(message, &git.CommitOptions{Author: r.signature()}); err != nil {
		return false, fmt.Errorf("committing changes: %w", err)
	}
	return true, nil
}

// CreateTag creates an annotated tag on HEAD.
func (r *Repository) CreateTag(name, message string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}
	_, err = r.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger:  r.signature(),
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}
	return nil
}

// signature builds the author for commits and tags from the git user
// configuration, falling back to a tool identity.
func (r *Repository) signature() *object.Signature {
	sig := &object.Signature{
		Name:  "version-it",
		Email: "version-it@localhost",
		When:  time.Now(),
	}
	cfg, err := r.repo.ConfigScoped(config.SystemScope)
	if err != nil {
		logger.Debug("could not read git config", "err", err)
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}
