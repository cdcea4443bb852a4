package versionit

import "strings"

// Template is an ordered list of blocks joined by a separator and wrapped in
// an optional prefix and suffix. Builder methods return modified copies.
type Template struct {
	name      string
	blocks    []Block
	separator string
	prefix    string
	suffix    string
}

// NewTemplate returns an empty template using "." as separator.
func NewTemplate(name string) Template {
	return Template{name: name, separator: "."}
}

func (t Template) WithSeparator(separator string) Template {
	t.separator = separator
	return t
}

func (t Template) WithPrefix(prefix string) Template {
	t.prefix = prefix
	return t
}

func (t Template) WithSuffix(suffix string) Template {
	t.suffix = suffix
	return t
}

// AddBlock returns a copy of the template with block appended.
func (t Template) AddBlock(block Block) Template {
	blocks := make([]Block, len(t.blocks), len(t.blocks)+1)
	copy(blocks, t.blocks)
	t.blocks = append(blocks, block)
	return t
}

func (t Template) Name() string      { return t.name }
func (t Template) Separator() string { return t.separator }
func (t Template) Prefix() string    { return t.prefix }
func (t Template) Suffix() string    { return t.suffix }

// Blocks returns a copy of the template's blocks.
func (t Template) Blocks() []Block {
	blocks := make([]Block, len(t.blocks))
	copy(blocks, t.blocks)
	return blocks
}

// Generate evaluates every block in order and joins the results.
//
// Each value is recorded in ctx before the next block runs, so versioned
// blocks can reference earlier blocks only. The first failing block aborts
// generation and no partial version is returned.
func (t Template) Generate(ctx *Context) (string, error) {
	if ctx == nil {
		ctx = NewContext()
	}
	ctx.resetBlockValues()

	parts := make([]string, 0, len(t.blocks))
	for _, block := range t.blocks {
		value, err := block.Evaluate(ctx)
		if err != nil {
			return "", err
		}
		ctx.setBlockValue(block.Name, value)
		parts = append(parts, value)
	}

	return t.prefix + strings.Join(parts, t.separator) + t.suffix, nil
}
