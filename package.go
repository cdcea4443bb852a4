package versionit

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/sjson"
)

// Default version fields per package manager.
var defaultPackageFields = map[string]string{
	"npm":    "version",
	"yarn":   "version",
	"pnpm":   "version",
	"cargo":  "version",
	"python": "__version__",
	"maven":  "version",
	"cmake":  "PROJECT_VERSION",
}

// UpdatePackageFiles writes version into every configured package manifest.
// Relative paths are resolved against baseDir.
func UpdatePackageFiles(files []PackageFile, version, baseDir string) error {
	for _, f := range files {
		if err := UpdateField(resolvePath(baseDir, f.Path), f.Manager, f.Field, version); err != nil {
			return fmt.Errorf("updating %s: %w", f.Path, err)
		}
	}
	return nil
}

// UpdateField sets the version field of the manifest at path. An empty field
// selects the manager's default. Missing files are skipped.
func UpdateField(path, manager, field, value string) error {
	manager = strings.ToLower(manager)
	defaultField, ok := defaultPackageFields[manager]
	if !ok {
		return fmt.Errorf("unsupported package manager: %s", manager)
	}
	if field == "" {
		field = defaultField
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("skipping missing package file", "path", path)
			return nil
		}
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var updated []byte
	switch manager {
	case "npm", "yarn", "pnpm":
		updated, err = updateJSONField(content, field, value)
	case "cargo":
		updated, err = updateTOMLField(content, field, value)
	case "python":
		updated, err = updatePythonField(content, field, value)
	case "maven":
		updated, err = updateXMLField(content, field, value)
	case "cmake":
		updated, err = updateCMakeField(content, field, value)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, updated, info.Mode().Perm())
}

// updateJSONField sets a dotted field path, keeping key order and formatting.
func updateJSONField(content []byte, field, value string) ([]byte, error) {
	out, err := sjson.SetBytes(content, field, value)
	if err != nil {
		return nil, fmt.Errorf("setting JSON field %s: %w", field, err)
	}
	return out, nil
}

// updateTOMLField sets a dotted field path, creating intermediate tables.
func updateTOMLField(content []byte, field, value string) ([]byte, error) {
	doc := make(map[string]any)
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	parts := strings.Split(field, ".")
	table := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := table[part]
		if !ok {
			created := make(map[string]any)
			table[part] = created
			table = created
			continue
		}
		nested, ok := next.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot navigate to field %q: %q is not a table", field, part)
		}
		table = nested
	}
	table[parts[len(parts)-1]] = value

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding TOML: %w", err)
	}
	return out, nil
}

// updatePythonField rewrites quoted assignments such as __version__ = "1.0.0".
func updatePythonField(content []byte, field, value string) ([]byte, error) {
	re, err := regexp.Compile(`(?m)^(\s*` + regexp.QuoteMeta(field) + `\s*=\s*)(["'])[^"'\n]*(["'])`)
	if err != nil {
		return nil, err
	}
	return re.ReplaceAll(content, []byte("${1}${2}"+escapeReplacement(value)+"${3}")), nil
}

// updateXMLField replaces the text of the first <field> element.
func updateXMLField(content []byte, field, value string) ([]byte, error) {
	re, err := regexp.Compile(`<` + regexp.QuoteMeta(field) + `>[^<]*</` + regexp.QuoteMeta(field) + `>`)
	if err != nil {
		return nil, err
	}
	loc := re.FindIndex(content)
	if loc == nil {
		return content, nil
	}
	replacement := "<" + field + ">" + value + "</" + field + ">"

	out := make([]byte, 0, len(content)+len(replacement))
	out = append(out, content[:loc[0]]...)
	out = append(out, replacement...)
	out = append(out, content[loc[1]:]...)
	return out, nil
}

var cmakeProjectVersion = regexp.MustCompile(`(?m)^(\s*project\(.*\bVERSION\s+)[0-9][0-9.]*`)

// updateCMakeField handles set(FIELD "x.y.z") and project(... VERSION x.y.z).
func updateCMakeField(content []byte, field, value string) ([]byte, error) {
	set, err := regexp.Compile(`(?m)^(\s*set\(\s*` + regexp.QuoteMeta(field) + `\s+")[^"]*(")`)
	if err != nil {
		return nil, err
	}
	escaped := escapeReplacement(value)
	out := set.ReplaceAll(content, []byte("${1}"+escaped+"${2}"))
	out = cmakeProjectVersion.ReplaceAll(out, []byte("${1}"+escaped))
	return out, nil
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
