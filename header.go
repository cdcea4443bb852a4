package versionit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aymerick/raymond"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/mod/modfile"
)

const recentCommitLimit = 10

// RenderHeader renders a handlebars template such as
// "#define VERSION \"{{version}}\"" against data.
func RenderHeader(template string, data map[string]any) (string, error) {
	out, err := raymond.Render(template, data)
	if err != nil {
		return "", fmt.Errorf("rendering header template: %w", err)
	}
	return out, nil
}

// GenerateHeaders renders every header and writes it to its path. A header's
// template-path takes precedence over its inline template. Relative paths are
// resolved against baseDir.
func GenerateHeaders(headers []VersionHeader, data map[string]any, baseDir string) error {
	for _, h := range headers {
		var tmpl string
		switch {
		case h.TemplatePath != "":
			raw, err := os.ReadFile(resolvePath(baseDir, h.TemplatePath))
			if err != nil {
				return fmt.Errorf("reading header template: %w", err)
			}
			tmpl = string(raw)
		case h.Template != "":
			tmpl = h.Template
		default:
			return fmt.Errorf("version header %s: either template or template-path must be specified", h.Path)
		}

		content, err := RenderHeader(tmpl, data)
		if err != nil {
			return fmt.Errorf("version header %s: %w", h.Path, err)
		}
		target := resolvePath(baseDir, h.Path)
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing version header %s: %w", h.Path, err)
		}
		logger.Debug("wrote version header", "path", target)
	}
	return nil
}

// HeaderData builds the values available to header templates. repo may be
// nil, in which case git values read "unknown".
func HeaderData(version string, scheme Scheme, channel string, repo *Repository, baseDir string, now time.Time) map[string]any {
	return map[string]any{
		"version": version,
		"scheme":  string(scheme),
		"channel": channel,
		"git":     gitData(repo),
		"build": map[string]any{
			"timestamp": now.Format(time.RFC3339),
			"date":      now.Format(time.DateOnly),
			"time":      now.Format(time.TimeOnly),
			"compiler":  runtime.Version(),
		},
		"system": map[string]any{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		},
		"project": readProject(baseDir).data(),
		"stats": map[string]any{
			"file_count":    "disabled",
			"lines_of_code": "disabled",
		},
	}
}

func gitData(repo *Repository) map[string]any {
	data := map[string]any{
		"commit_hash":       unknownValue,
		"commit_hash_full":  unknownValue,
		"branch":            unknownValue,
		"tag":               "",
		"author":            unknownValue,
		"email":             unknownValue,
		"date":              unknownValue,
		"commit_count":      0,
		"first_commit_date": unknownValue,
		"recent_commits":    []map[string]any{},
	}
	if repo == nil {
		return data
	}

	data["commit_hash"] = lookupGit(repo, "commit", GitInfo.CurrentCommitShort)
	data["commit_hash_full"] = lookupGit(repo, "commit", GitInfo.CurrentCommitFull)
	data["branch"] = lookupGit(repo, "branch", GitInfo.CurrentBranch)
	if tag, ok, err := repo.NearestTag(); err == nil && ok {
		data["tag"] = tag
	}
	if head, err := repo.HeadCommit(); err == nil {
		data["author"] = head.Author.Name
		data["email"] = head.Author.Email
		data["date"] = head.Author.When.Format(time.RFC3339)
	}
	if root, err := repo.RootCommit(); err == nil {
		data["first_commit_date"] = root.Author.When.Format(time.RFC3339)
	}

	count, recent, err := repo.history(recentCommitLimit)
	if err != nil {
		logger.Debug("could not read commit history", "err", err)
		return data
	}
	data["commit_count"] = count
	data["recent_commits"] = recent
	return data
}

// history counts the commits reachable from HEAD and describes the newest
// limit of them.
func (r *Repository) history(limit int) (int, []map[string]any, error) {
	head, err := r.repo.Head()
	if err != nil {
		return 0, nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, nil, fmt.Errorf("reading log: %w", err)
	}

	count := 0
	recent := make([]map[string]any, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		count++
		if len(recent) < limit {
			recent = append(recent, map[string]any{
				"hash_full":  c.Hash.String(),
				"hash_short": c.Hash.String()[:shortHashLength],
				"subject":    subject(c.Message),
				"author":     c.Author.Name,
				"email":      c.Author.Email,
				"date":       c.Author.When.Format(time.RFC3339),
			})
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return 0, nil, fmt.Errorf("reading log: %w", err)
	}
	return count, recent, nil
}

type project struct {
	Name        string
	Description string
	Authors     []string
}

func (p project) data() map[string]any {
	description := p.Description
	if description == "" {
		description = unknownValue
	}
	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	return map[string]any{
		"name":        p.Name,
		"description": description,
		"authors":     authors,
	}
}

// merge fills the fields of p that are still empty.
func (p *project) merge(other project) {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.Description == "" {
		p.Description = other.Description
	}
	if len(p.Authors) == 0 {
		p.Authors = other.Authors
	}
}

// readProject collects project metadata from go.mod, package.json and
// Cargo.toml in baseDir, earlier files winning. The name falls back to the
// directory name.
func readProject(baseDir string) project {
	dir := baseDir
	if dir == "" {
		dir = "."
	}

	var p project
	if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
		p.merge(project{Name: modfile.ModulePath(data)})
	}
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		pkg := gjson.ParseBytes(data)
		p.merge(project{
			Name:        pkg.Get("name").String(),
			Description: pkg.Get("description").String(),
			Authors:     packageAuthors(pkg),
		})
	}
	if data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")); err == nil {
		var manifest struct {
			Package struct {
				Name        string   `toml:"name"`
				Description string   `toml:"description"`
				Authors     []string `toml:"authors"`
			} `toml:"package"`
		}
		if err := toml.Unmarshal(data, &manifest); err == nil {
			p.merge(project(manifest.Package))
		} else {
			logger.Debug("could not parse Cargo.toml", "err", err)
		}
	}

	if p.Name == "" {
		p.Name = unknownValue
		if abs, err := filepath.Abs(dir); err == nil {
			p.Name = filepath.Base(abs)
		}
	}
	return p
}

// packageAuthors reads "author" and "contributors", each either a string or
// an object with a name.
func packageAuthors(pkg gjson.Result) []string {
	var authors []string
	add := func(person gjson.Result) {
		name := person.String()
		if person.IsObject() {
			name = person.Get("name").String()
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	if author := pkg.Get("author"); author.Exists() {
		add(author)
	}
	pkg.Get("contributors").ForEach(func(_, person gjson.Result) bool {
		add(person)
		return true
	})
	return authors
}
