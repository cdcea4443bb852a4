package versionit

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderHeader(t *testing.T) {
	data := map[string]any{
		"version": "1.2.3",
		"git":     map[string]any{"branch": "main"},
		"items":   []map[string]any{{"subject": "first"}, {"subject": "second"}},
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"Plain", `#define VERSION "{{version}}"`, `#define VERSION "1.2.3"`},
		{"Nested", "branch={{git.branch}}", "branch=main"},
		{"Each", "{{#each items}}{{subject}};{{/each}}", "first;second;"},
		{"Missing value", "[{{nothing}}]", "[]"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out, err := RenderHeader(test.template, data)
			require.NoError(t, err)
			require.Equal(t, test.want, out)
		})
	}

	_, err := RenderHeader("{{#each items}}unterminated", data)
	require.ErrorContains(t, err, "rendering header template")
}

func TestHeaderDataWithoutRepository(t *testing.T) {
	dir := t.TempDir()
	data := HeaderData("2.0.0", SchemeSemantic, "beta", nil, dir, testTime)

	require.Equal(t, "2.0.0", data["version"])
	require.Equal(t, "semantic", data["scheme"])
	require.Equal(t, "beta", data["channel"])

	git := data["git"].(map[string]any)
	require.Equal(t, "unknown", git["commit_hash"])
	require.Equal(t, "unknown", git["branch"])
	require.Equal(t, "", git["tag"])
	require.Equal(t, 0, git["commit_count"])

	build := data["build"].(map[string]any)
	require.Equal(t, "2025-10-10T14:30:45Z", build["timestamp"])
	require.Equal(t, "2025-10-10", build["date"])
	require.Equal(t, "14:30:45", build["time"])
	require.Equal(t, runtime.Version(), build["compiler"])

	system := data["system"].(map[string]any)
	require.Equal(t, runtime.GOOS, system["os"])
	require.Equal(t, runtime.GOARCH, system["arch"])
	require.Len(t, system, 2)

	stats := data["stats"].(map[string]any)
	require.Equal(t, "disabled", stats["file_count"])
	require.Equal(t, "disabled", stats["lines_of_code"])

	project := data["project"].(map[string]any)
	require.Equal(t, filepath.Base(dir), project["name"])
	require.Equal(t, "unknown", project["description"])
	require.Equal(t, []string{}, project["authors"])
	require.Equal(t, "unknown", git["first_commit_date"])
}

func TestHeaderDataWithRepository(t *testing.T) {
	repo, err := testRepoCreate()
	require.NoError(t, err)
	_, err = testRepoCommit(repo, "a.txt", "a", "First change")
	require.NoError(t, err)
	head, err := testRepoCommit(repo, "b.txt", "b", "Second change\n\nWith a body")
	require.NoError(t, err)
	_, err = repo.CreateTag("v1.0.0", head, nil)
	require.NoError(t, err)

	data := HeaderData("1.0.0", SchemeSemantic, "", NewRepository(repo), t.TempDir(), testTime)
	git := data["git"].(map[string]any)

	root, err := NewRepository(repo).RootCommit()
	require.NoError(t, err)
	require.Equal(t, "First change", root.Message)
	require.Equal(t, root.Author.When.Format(time.RFC3339), git["first_commit_date"])

	require.Equal(t, head.String(), git["commit_hash_full"])
	require.Equal(t, head.String()[:7], git["commit_hash"])
	require.Equal(t, "master", git["branch"])
	require.Equal(t, "v1.0.0", git["tag"])
	require.Equal(t, "test", git["author"])
	require.Equal(t, "test@example.com", git["email"])
	require.Equal(t, 2, git["commit_count"])

	recent := git["recent_commits"].([]map[string]any)
	require.Len(t, recent, 2)
	require.Equal(t, "Second change", recent[0]["subject"])
	require.Equal(t, "First change", recent[1]["subject"])
	require.Equal(t, head.String()[:7], recent[0]["hash_short"])

	out, err := RenderHeader("{{git.tag}} {{#each git.recent_commits}}[{{subject}}]{{/each}}", data)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0 [Second change][First change]", out)

	t.Run("Nearest tag on an untagged commit", func(t *testing.T) {
		_, err := testRepoCommit(repo, "c.txt", "c", "Third change")
		require.NoError(t, err)

		data := HeaderData("1.0.1", SchemeSemantic, "", NewRepository(repo), t.TempDir(), testTime)
		git := data["git"].(map[string]any)
		require.Equal(t, "v1.0.0", git["tag"])
		require.Equal(t, 3, git["commit_count"])
	})
}

func TestReadProject(t *testing.T) {
	t.Run("go.mod", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "go.mod", "module example.com/demo\n\ngo 1.23\n")
		writeTestFile(t, dir, "package.json", `{"name":"ignored","description":"From npm"}`)

		p := readProject(dir)
		require.Equal(t, "example.com/demo", p.Name)
		require.Equal(t, "From npm", p.Description)
	})

	t.Run("package.json", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "package.json", `{
  "name": "web-app",
  "version": "1.0.0",
  "description": "A web app",
  "author": "Ada <ada@example.com>",
  "contributors": [{"name": "Grace", "email": "grace@example.com"}, "Linus"]
}`)

		p := readProject(dir)
		require.Equal(t, "web-app", p.Name)
		require.Equal(t, "A web app", p.Description)
		require.Equal(t, []string{"Ada <ada@example.com>", "Grace", "Linus"}, p.Authors)
	})

	t.Run("package.json author object", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "package.json", `{"name":"lib","author":{"name":"Ada","url":"https://example.com"}}`)
		require.Equal(t, []string{"Ada"}, readProject(dir).Authors)
	})

	t.Run("Cargo.toml", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "Cargo.toml", `[package]
name = "crate-demo"
description = "A crate"
authors = ["Ferris <ferris@example.com>", "Bors"]
`)

		p := readProject(dir)
		require.Equal(t, "crate-demo", p.Name)
		require.Equal(t, "A crate", p.Description)
		require.Equal(t, []string{"Ferris <ferris@example.com>", "Bors"}, p.Authors)

		data := p.data()
		require.Equal(t, "crate-demo", data["name"])
		require.Equal(t, []string{"Ferris <ferris@example.com>", "Bors"}, data["authors"])
	})

	t.Run("Directory name", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "plain-project")
		writeTestFile(t, dir, "README", "hello")

		data := readProject(dir).data()
		require.Equal(t, "plain-project", data["name"])
		require.Equal(t, "unknown", data["description"])
		require.Equal(t, []string{}, data["authors"])
	})
}

func TestGenerateHeaders(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "templates/version.go.hbs", "package version\n\nconst Version = \"{{version}}\"\n")

	headers := []VersionHeader{
		{Path: "include/version.h", Template: `#define VERSION "{{version}}" // {{scheme}}`},
		{Path: "version/version.go", TemplatePath: "templates/version.go.hbs"},
	}
	data := HeaderData("3.1.0", SchemeSemantic, "", nil, dir, testTime)
	require.NoError(t, GenerateHeaders(headers, data, dir))

	require.Equal(t, `#define VERSION "3.1.0" // semantic`, readTestFile(t, filepath.Join(dir, "include/version.h")))
	require.Equal(t, "package version\n\nconst Version = \"3.1.0\"\n", readTestFile(t, filepath.Join(dir, "version/version.go")))

	t.Run("No template", func(t *testing.T) {
		err := GenerateHeaders([]VersionHeader{{Path: "x.h"}}, data, dir)
		require.ErrorContains(t, err, "either template or template-path must be specified")
	})

	t.Run("Missing template file", func(t *testing.T) {
		err := GenerateHeaders([]VersionHeader{{Path: "x.h", TemplatePath: "nope.hbs"}}, data, dir)
		require.ErrorContains(t, err, "reading header template")
	})
}
