package versionit

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNoVersion is returned when no current version can be determined.
var ErrNoVersion = errors.New("no version provided and no config found")

// ResolveVersion picks the version to bump: the explicit version when set,
// then the configured current version, then the latest version tag in repo.
func ResolveVersion(explicit string, cfg *Config, baseDir string, scheme Scheme, repo *Repository) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if cfg != nil {
		v, err := cfg.CurrentVersion(baseDir)
		if err == nil {
			return v, nil
		}
		logger.Debug("no configured current version", "err", err)
	}
	if repo != nil {
		v, ok, err := repo.LatestVersionTag(scheme)
		if err != nil {
			logger.Debug("could not read version tags", "err", err)
		} else if ok {
			return v, nil
		}
	}
	return "", ErrNoVersion
}

// Release publishes a bumped version: it writes the version file, renders
// headers, updates package manifests and optionally commits and tags.
type Release struct {
	Config  *Config
	Repo    *Repository
	BaseDir string
	Now     func() time.Time

	// TagPrefix is prepended to the version in tag names and commit
	// messages, for example "services/api/".
	TagPrefix string
}

// Plan describes the operations Apply would perform, one line each.
func (r *Release) Plan(version string, commit, tag bool) []string {
	var ops []string
	if r.Config != nil {
		if r.Config.CurrentVersionFile != "" {
			ops = append(ops, fmt.Sprintf("Write version '%s' to file '%s'", version, r.Config.CurrentVersionFile))
		}
		for _, h := range r.Config.VersionHeaders {
			ops = append(ops, fmt.Sprintf("Generate header file '%s'", h.Path))
		}
		for _, p := range r.Config.PackageFiles {
			ops = append(ops, fmt.Sprintf("Update version in '%s' (%s)", p.Path, p.Manager))
		}
	}
	if commit {
		ops = append(ops, fmt.Sprintf("Commit changes with message '%s'", CommitMessage(r.TagPrefix+version)))
	}
	if tag {
		ops = append(ops, fmt.Sprintf("Create git tag '%s'", r.TagPrefix+version))
	}
	return ops
}

// Apply performs the release of version. Commit and tag require a
// repository.
func (r *Release) Apply(version, channel string, commit, tag bool) error {
	if r.Config != nil {
		if err := r.writeFiles(version, channel); err != nil {
			return err
		}
	}

	if (commit || tag) && r.Repo == nil {
		return errors.New("git operations requested but no repository is available")
	}
	name := r.TagPrefix + version
	if commit {
		committed, err := r.Repo.CommitChanges(CommitMessage(name))
		if err != nil {
			return fmt.Errorf("committing changes: %w", err)
		}
		if committed {
			logger.Info("committed version bump", "version", name)
		} else {
			logger.Debug("nothing to commit")
		}
	}
	if tag {
		if err := r.Repo.CreateTag(name, TagMessage(version)); err != nil {
			return err
		}
		logger.Info("created git tag", "tag", name)
	}
	return nil
}

func (r *Release) writeFiles(version, channel string) error {
	cfg := r.Config
	if cfg.CurrentVersionFile != "" {
		path := resolvePath(r.BaseDir, cfg.CurrentVersionFile)
		if err := os.WriteFile(path, []byte(version), 0o644); err != nil {
			return fmt.Errorf("writing version to file: %w", err)
		}
	}
	if len(cfg.VersionHeaders) > 0 {
		data := HeaderData(version, cfg.Scheme(), channel, r.Repo, r.BaseDir, r.now())
		if err := GenerateHeaders(cfg.VersionHeaders, data, r.BaseDir); err != nil {
			return fmt.Errorf("generating headers: %w", err)
		}
	}
	if err := UpdatePackageFiles(cfg.PackageFiles, version, r.BaseDir); err != nil {
		return fmt.Errorf("updating package files: %w", err)
	}
	return nil
}

func (r *Release) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// CommitMessage is the message of a version bump commit.
func CommitMessage(version string) string {
	return "Bump version to " + version
}

// TagMessage is the annotation of a version tag.
func TagMessage(version string) string {
	return "Version " + version
}
