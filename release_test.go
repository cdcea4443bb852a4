package versionit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testReleaseConfig() *Config {
	return &Config{
		VersioningScheme:   "semantic",
		CurrentVersionFile: "VERSION",
		VersionHeaders: []VersionHeader{
			{Path: "version.h", Template: `#define VERSION "{{version}}"`},
		},
		PackageFiles: []PackageFile{
			{Path: "package.json", Manager: "npm"},
		},
	}
}

func TestReleasePlan(t *testing.T) {
	r := &Release{Config: testReleaseConfig()}

	require.Equal(t, []string{
		"Write version '1.1.0' to file 'VERSION'",
		"Generate header file 'version.h'",
		"Update version in 'package.json' (npm)",
		"Commit changes with message 'Bump version to 1.1.0'",
		"Create git tag '1.1.0'",
	}, r.Plan("1.1.0", true, true))

	require.Len(t, r.Plan("1.1.0", false, false), 3)

	prefixed := &Release{TagPrefix: "services/api/"}
	require.Equal(t, []string{
		"Commit changes with message 'Bump version to services/api/2.0.0'",
		"Create git tag 'services/api/2.0.0'",
	}, prefixed.Plan("2.0.0", true, true))

	require.Empty(t, (&Release{}).Plan("1.0.0", false, false))
}

func TestReleaseApplyFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "package.json", `{"name":"demo","version":"1.0.0"}`)

	r := &Release{Config: testReleaseConfig(), BaseDir: dir, Now: testClock}
	require.NoError(t, r.Apply("1.1.0", "", false, false))

	require.Equal(t, "1.1.0", readTestFile(t, filepath.Join(dir, "VERSION")))
	require.Equal(t, `#define VERSION "1.1.0"`, readTestFile(t, filepath.Join(dir, "version.h")))
	require.Equal(t, "1.1.0", gjson.Get(readTestFile(t, filepath.Join(dir, "package.json")), "version").String())
}

func TestReleaseApplyWithoutRepository(t *testing.T) {
	r := &Release{BaseDir: t.TempDir()}
	require.ErrorContains(t, r.Apply("1.0.0", "", true, false), "no repository")
	require.ErrorContains(t, r.Apply("1.0.0", "", false, true), "no repository")
	require.NoError(t, r.Apply("1.0.0", "", false, false))
}

func TestReleaseApplyGit(t *testing.T) {
	dir := t.TempDir()
	repo, err := testRepoFSCreate(dir)
	require.NoError(t, err)
	_, err = testRepoSingleCommit(repo)
	require.NoError(t, err)

	opened, err := OpenRepository(dir)
	require.NoError(t, err)

	r := &Release{Config: &Config{CurrentVersionFile: "VERSION"}, Repo: opened, BaseDir: dir}
	require.NoError(t, r.Apply("1.1.0", "", true, true))

	head, err := opened.HeadCommit()
	require.NoError(t, err)
	require.Equal(t, "Bump version to 1.1.0", head.Message)

	file, err := head.File("VERSION")
	require.NoError(t, err)
	content, err := file.Contents()
	require.NoError(t, err)
	require.Equal(t, "1.1.0", content)

	tags, err := opened.LatestTags()
	require.NoError(t, err)
	require.Equal(t, []string{"1.1.0"}, tags)

	t.Run("Prefixed tag", func(t *testing.T) {
		r := &Release{Config: &Config{CurrentVersionFile: "VERSION"}, Repo: opened, BaseDir: dir, TagPrefix: "api/"}
		require.NoError(t, r.Apply("1.2.0", "", true, true))

		head, err := opened.HeadCommit()
		require.NoError(t, err)
		require.Equal(t, "Bump version to api/1.2.0", head.Message)

		tags, err := opened.LatestTags()
		require.NoError(t, err)
		require.Equal(t, []string{"api/1.2.0"}, tags)

		version, ok, err := opened.LatestVersionTag(SchemeSemantic)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.2.0", version)
	})

	t.Run("Nothing to commit still tags", func(t *testing.T) {
		r := &Release{Repo: opened, BaseDir: dir}
		require.NoError(t, r.Apply("1.2.1", "", true, true))

		head, err := opened.HeadCommit()
		require.NoError(t, err)
		require.Equal(t, "Bump version to api/1.2.0", head.Message)

		tags, err := opened.LatestTags()
		require.NoError(t, err)
		require.Equal(t, []string{"1.2.1", "api/1.2.0"}, tags)
	})
}

func TestResolveVersion(t *testing.T) {
	t.Run("Explicit version wins", func(t *testing.T) {
		v, err := ResolveVersion("9.9.9", &Config{FirstVersion: "1.0.0"}, "", SchemeSemantic, nil)
		require.NoError(t, err)
		require.Equal(t, "9.9.9", v)
	})

	t.Run("Config current version", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "VERSION", "2.4.0\n")

		v, err := ResolveVersion("", &Config{CurrentVersionFile: "VERSION"}, dir, SchemeSemantic, nil)
		require.NoError(t, err)
		require.Equal(t, "2.4.0", v)
	})

	t.Run("Latest tag", func(t *testing.T) {
		repo, err := testRepoCreate()
		require.NoError(t, err)
		repo, err = testRepoWithTags(repo, []string{"v0.5.0"})
		require.NoError(t, err)

		v, err := ResolveVersion("", &Config{}, t.TempDir(), SchemeSemantic, NewRepository(repo))
		require.NoError(t, err)
		require.Equal(t, "0.5.0", v)
	})

	t.Run("Nothing available", func(t *testing.T) {
		_, err := ResolveVersion("", nil, "", SchemeSemantic, nil)
		require.ErrorIs(t, err, ErrNoVersion)

		repo, err := testRepoCreate()
		require.NoError(t, err)
		_, err = testRepoSingleCommit(repo)
		require.NoError(t, err)

		_, err = ResolveVersion("", nil, "", SchemeSemantic, NewRepository(repo))
		require.ErrorIs(t, err, ErrNoVersion)
	})
}
