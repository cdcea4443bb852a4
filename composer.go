package versionit

import (
	"maps"
	"slices"
)

// Composer owns a set of named templates and the persistent counters they
// read. It is not safe for concurrent use.
type Composer struct {
	templates       map[string]Template
	counters        map[string]uint32
	defaultTemplate string
	git             GitInfo
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithRepository sets the repository used to seed branch and commit values
// of generated versions.
func WithRepository(git GitInfo) ComposerOption {
	return func(c *Composer) {
		c.git = git
	}
}

// WithDefaultTemplate sets the template used when no name is given.
func WithDefaultTemplate(name string) ComposerOption {
	return func(c *Composer) {
		c.defaultTemplate = name
	}
}

// NewComposer returns a composer with no templates and no counters.
func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{
		templates: make(map[string]Template),
		counters:  make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a composer from a declarative configuration.
func FromConfig(cfg *ComposerConfig, opts ...ComposerOption) *Composer {
	c := NewComposer()
	if cfg != nil {
		c.defaultTemplate = cfg.DefaultTemplate
		for name, value := range cfg.Counters {
			c.SetCounter(name, value)
		}
		for _, t := range cfg.Templates {
			c.AddTemplate(t)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddTemplate registers t, replacing any template with the same name.
func (c *Composer) AddTemplate(t Template) {
	c.templates[t.Name()] = t
}

// Template returns the template registered under name.
func (c *Composer) Template(name string) (Template, bool) {
	t, ok := c.templates[name]
	return t, ok
}

// Templates returns the registered template names in sorted order.
func (c *Composer) Templates() []string {
	return slices.Sorted(maps.Keys(c.templates))
}

// DefaultTemplate returns the name of the default template, empty when unset.
func (c *Composer) DefaultTemplate() string {
	return c.defaultTemplate
}

// SetDefaultTemplate sets the template used when no name is given.
func (c *Composer) SetDefaultTemplate(name string) {
	c.defaultTemplate = name
}

// SetCounter sets a counter to value.
func (c *Composer) SetCounter(name string, value uint32) {
	c.counters[name] = value
}

// IncrementCounter adds one to a counter, treating a missing counter as 0,
// and returns the new value. A counter at math.MaxUint32 wraps to 0.
func (c *Composer) IncrementCounter(name string) uint32 {
	c.counters[name]++
	return c.counters[name]
}

// Counter returns the current value of a counter.
func (c *Composer) Counter(name string) (uint32, bool) {
	v, ok := c.counters[name]
	return v, ok
}

// Counters returns a copy of all counters.
func (c *Composer) Counters() map[string]uint32 {
	return maps.Clone(c.counters)
}

// GenerateVersion generates a version from the named template, or from the
// default template when name is empty.
func (c *Composer) GenerateVersion(name string) (string, error) {
	return c.GenerateVersionWithContext(name, nil)
}

// GenerateVersionWithContext is GenerateVersion with the set fields of
// override replacing the composer-provided ones. Override counters are
// merged key by key.
//
// An empty string in override means "not set", so an override cannot blank
// out a value the repository supplies; an empty branch or commit always
// falls back to git. Use a text block for a literal empty value.
func (c *Composer) GenerateVersionWithContext(name string, override *Context) (string, error) {
	t, err := c.resolve(name)
	if err != nil {
		return "", err
	}

	ctx := c.baseContext()
	ctx.merge(override)

	return t.Generate(ctx)
}

// ResolveTemplate returns the template that GenerateVersion would use for
// name.
func (c *Composer) ResolveTemplate(name string) (Template, error) {
	return c.resolve(name)
}

func (c *Composer) resolve(name string) (Template, error) {
	if name == "" {
		name = c.defaultTemplate
	}
	if name == "" {
		return Template{}, ErrNoTemplateSelected
	}
	t, ok := c.templates[name]
	if !ok {
		return Template{}, &TemplateNotFoundError{Name: name}
	}
	return t, nil
}

// baseContext seeds a fresh context with the composer counters and, when a
// repository is available, the current branch and commit. Git failures
// leave the fields empty.
func (c *Composer) baseContext() *Context {
	ctx := NewContext()
	for name, value := range c.counters {
		ctx.WithCounter(name, value)
	}
	if c.git == nil {
		return ctx
	}
	ctx.Git = c.git

	if commit, err := c.git.CurrentCommitShort(); err == nil {
		ctx.CurrentCommit = commit
	} else {
		logger.Debug("could not resolve current commit", "err", err)
	}
	if branch, err := c.git.CurrentBranch(); err == nil {
		ctx.CurrentBranch = branch
	} else {
		logger.Debug("could not resolve current branch", "err", err)
	}
	return ctx
}
