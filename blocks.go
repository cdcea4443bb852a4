package versionit

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/lestrrat-go/strftime"
)

// Block is one named unit of a template. Blocks are values: the With methods
// return modified copies, so a block cannot change once added to a template.
type Block struct {
	Name   string
	Kind   BlockKind
	Format string
	Config map[string]string
}

// NewBlock returns a block with no format and no extra configuration.
func NewBlock(name string, kind BlockKind) Block {
	return Block{Name: name, Kind: kind}
}

// WithFormat returns a copy of the block using format.
func (b Block) WithFormat(format string) Block {
	b.Format = format
	return b
}

// WithConfig returns a copy of the block with key set to value.
func (b Block) WithConfig(key, value string) Block {
	cfg := make(map[string]string, len(b.Config)+1)
	maps.Copy(cfg, b.Config)
	cfg[key] = value
	b.Config = cfg
	return b
}

// BlockKind is the closed set of block types. Only the types in this package
// implement it.
type BlockKind interface {
	// Type returns the configuration tag of the kind.
	Type() string
	sealed()
}

// Override returns a pointer to n, for the optional fields of semantic and
// calver blocks.
func Override(n uint32) *uint32 {
	return &n
}

// SemanticBlock renders the context's current version with the set fields
// replacing the corresponding components.
type SemanticBlock struct {
	Major *uint32
	Minor *uint32
	Patch *uint32
}

// CalverBlock renders a calendar date; unset fields come from today's UTC date.
type CalverBlock struct {
	Year  *uint32
	Month *uint32
	Day   *uint32
}

// TimestampBlock renders the current time.
type TimestampBlock struct{}

// CommitBlock renders the current commit hash.
type CommitBlock struct{}

// CounterBlock renders a named counter, 0 when unset.
type CounterBlock struct {
	Name string
}

// TextBlock renders a literal value.
type TextBlock struct {
	Value string
}

// DateBlock renders the current UTC time with a strftime format.
type DateBlock struct {
	Format string
}

// BranchBlock renders the current branch.
type BranchBlock struct{}

// BuildNumberBlock renders the context build number, 1 when unset.
type BuildNumberBlock struct{}

// VersionedBlock renders the value of an earlier block in the same template.
type VersionedBlock struct {
	Name string
}

func (SemanticBlock) Type() string    { return "semantic" }
func (CalverBlock) Type() string      { return "calver" }
func (TimestampBlock) Type() string   { return "timestamp" }
func (CommitBlock) Type() string      { return "commit" }
func (CounterBlock) Type() string     { return "counter" }
func (TextBlock) Type() string        { return "text" }
func (DateBlock) Type() string        { return "date" }
func (BranchBlock) Type() string      { return "branch" }
func (BuildNumberBlock) Type() string { return "build_number" }
func (VersionedBlock) Type() string   { return "versioned" }

func (SemanticBlock) sealed()    {}
func (CalverBlock) sealed()      {}
func (TimestampBlock) sealed()   {}
func (CommitBlock) sealed()      {}
func (CounterBlock) sealed()     {}
func (TextBlock) sealed()        {}
func (DateBlock) sealed()        {}
func (BranchBlock) sealed()      {}
func (BuildNumberBlock) sealed() {}
func (VersionedBlock) sealed()   {}

// Evaluate produces the value of the block against ctx.
//
// Only commit and branch blocks reach out to git, and only when the context
// does not already carry the value. Their failures resolve to "unknown".
func (b Block) Evaluate(ctx *Context) (string, error) {
	switch kind := b.Kind.(type) {
	case SemanticBlock:
		return evaluateSemantic(kind, ctx)

	case CalverBlock:
		now := ctx.now()
		y := valueOr(kind.Year, uint32(now.Year()))
		m := valueOr(kind.Month, uint32(now.Month()))
		d := valueOr(kind.Day, uint32(now.Day()))
		return formatCalver(b.Format, y, m, d), nil

	case TimestampBlock:
		return formatTimestamp(b.Format, ctx), nil

	case CommitBlock:
		if ctx.CurrentCommit != "" {
			return ctx.CurrentCommit, nil
		}
		return lookupGit(ctx.Git, "commit", func(g GitInfo) (string, error) {
			return g.CurrentCommitShort()
		}), nil

	case CounterBlock:
		return strconv.FormatUint(uint64(ctx.Counters[kind.Name]), 10), nil

	case TextBlock:
		return kind.Value, nil

	case DateBlock:
		now := ctx.now()
		out, err := strftime.Format(expandDateVerbs(kind.Format, now), now, strftime.WithSpecificationSet(dateSpecifications))
		if err != nil {
			return "", fmt.Errorf("formatting date block %q: %w", b.Name, err)
		}
		return out, nil

	case BranchBlock:
		if ctx.CurrentBranch != "" {
			return ctx.CurrentBranch, nil
		}
		return lookupGit(ctx.Git, "branch", func(g GitInfo) (string, error) {
			return g.CurrentBranch()
		}), nil

	case BuildNumberBlock:
		if ctx.BuildNumber == nil {
			return "1", nil
		}
		return strconv.FormatUint(uint64(*ctx.BuildNumber), 10), nil

	case VersionedBlock:
		value, ok := ctx.BlockValue(kind.Name)
		if !ok {
			return "", &ReferenceError{Name: kind.Name}
		}
		return value, nil

	default:
		return "", fmt.Errorf("block %q has unsupported kind %T", b.Name, b.Kind)
	}
}

func evaluateSemantic(kind SemanticBlock, ctx *Context) (string, error) {
	base := ctx.CurrentVersion
	if base == "" {
		base = "0.0.0"
	}
	v, err := semver.Parse(base)
	if err != nil {
		return "", &ParseError{Scheme: SchemeSemantic, Input: base, Err: err}
	}
	if kind.Major != nil {
		v.Major = uint64(*kind.Major)
	}
	if kind.Minor != nil {
		v.Minor = uint64(*kind.Minor)
	}
	if kind.Patch != nil {
		v.Patch = uint64(*kind.Patch)
	}
	return v.String(), nil
}

func formatCalver(format string, y, m, d uint32) string {
	switch format {
	case "YYYY.MM.DD":
		return fmt.Sprintf("%04d.%02d.%02d", y, m, d)
	case "YYMMDD":
		return fmt.Sprintf("%02d%02d%02d", y%100, m, d)
	case "YYYYMMDD":
		return fmt.Sprintf("%04d%02d%02d", y, m, d)
	default:
		return fmt.Sprintf("%02d.%02d.%02d", y%100, m, d)
	}
}

func formatTimestamp(format string, ctx *Context) string {
	now := ctx.now()
	switch format {
	case "unix":
		return strconv.FormatInt(now.Unix(), 10)
	case "unix_ms":
		return strconv.FormatInt(now.UnixMilli(), 10)
	case "iso":
		return now.Format("2006-01-02T15:04:05.999999999-07:00")
	default:
		return now.Format(timestampLayout)
	}
}

// lookupGit resolves a git-derived value, substituting "unknown" when no
// repository is available or the lookup fails.
func lookupGit(git GitInfo, what string, fn func(GitInfo) (string, error)) string {
	if git == nil {
		return unknownValue
	}
	value, err := fn(git)
	if err != nil || value == "" {
		logger.Debug("git lookup failed", "value", what, "err", err)
		return unknownValue
	}
	return value
}

func valueOr(p *uint32, fallback uint32) uint32 {
	if p == nil {
		return fallback
	}
	return *p
}

// dateSpecifications extends the strftime defaults with %s (unix seconds),
// %L (milliseconds) and %f (nanoseconds).
var dateSpecifications = func() strftime.SpecificationSet {
	ss := strftime.NewSpecificationSet()
	_ = ss.Set('s', strftime.UnixSeconds())
	_ = ss.Set('L', strftime.Milliseconds())
	_ = ss.Set('f', strftime.AppendFunc(func(b []byte, t time.Time) []byte {
		return fmt.Appendf(b, "%09d", t.Nanosecond())
	}))
	return ss
}()

// expandDateVerbs renders the verbs strftime cannot express in one byte:
// unpadded fields such as %-d and fixed width fractions such as %3f or
// %.6f. Everything else, %% included, is left for strftime.
func expandDateVerbs(format string, t time.Time) string {
	if !strings.Contains(format, "%") {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 == len(format) {
			b.WriteByte(format[i])
			continue
		}
		rest := format[i+1:]
		if rest[0] == '%' {
			b.WriteString("%%")
			i++
			continue
		}
		if rest[0] == '-' && len(rest) > 1 {
			if v, ok := unpaddedField(rest[1], t); ok {
				b.WriteString(v)
				i += 2
				continue
			}
		}
		if v, n, ok := fractionVerb(rest, t); ok {
			b.WriteString(v)
			i += n
			continue
		}
		b.WriteByte('%')
	}
	return b.String()
}

func unpaddedField(verb byte, t time.Time) (string, bool) {
	var n int
	switch verb {
	case 'd', 'e':
		n = t.Day()
	case 'm':
		n = int(t.Month())
	case 'y':
		n = t.Year() % 100
	case 'H', 'k':
		n = t.Hour()
	case 'I', 'l':
		n = t.Hour() % 12
		if n == 0 {
			n = 12
		}
	case 'M':
		n = t.Minute()
	case 'S':
		n = t.Second()
	case 'j':
		n = t.YearDay()
	default:
		return "", false
	}
	return strconv.Itoa(n), true
}

// fractionVerb matches "3f", "6f", "9f" and their "." prefixed forms at the
// start of verb, returning the rendered fraction and the bytes consumed.
func fractionVerb(verb string, t time.Time) (string, int, bool) {
	dot := strings.HasPrefix(verb, ".")
	digits := strings.TrimPrefix(verb, ".")
	if len(digits) < 2 || digits[1] != 'f' {
		return "", 0, false
	}
	var width int
	switch digits[0] {
	case '3':
		width = 3
	case '6':
		width = 6
	case '9':
		width = 9
	default:
		return "", 0, false
	}

	out := fmt.Sprintf("%09d", t.Nanosecond())[:width]
	consumed := 2
	if dot {
		out = "." + out
		consumed = 3
	}
	return out, consumed, true
}
