package versionit

import "time"

// Context is the mutable environment a template is evaluated against.
//
// Empty strings and a nil BuildNumber mean "not set". BlockValues holds the
// values produced so far by the template currently being generated and is
// reset at the start of every generation.
type Context struct {
	CurrentVersion string
	CurrentCommit  string
	CurrentBranch  string
	BuildNumber    *uint32
	Counters       map[string]uint32

	// Git is consulted by commit and branch blocks when the corresponding
	// field is empty. A nil Git resolves those blocks to "unknown".
	Git GitInfo

	// Now overrides the clock used by date-based blocks.
	Now func() time.Time

	blockValues map[string]string
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{
		Counters:    make(map[string]uint32),
		blockValues: make(map[string]string),
	}
}

func (c *Context) WithVersion(version string) *Context {
	c.CurrentVersion = version
	return c
}

func (c *Context) WithCommit(commit string) *Context {
	c.CurrentCommit = commit
	return c
}

func (c *Context) WithBranch(branch string) *Context {
	c.CurrentBranch = branch
	return c
}

func (c *Context) WithBuildNumber(build uint32) *Context {
	c.BuildNumber = &build
	return c
}

func (c *Context) WithCounter(name string, value uint32) *Context {
	if c.Counters == nil {
		c.Counters = make(map[string]uint32)
	}
	c.Counters[name] = value
	return c
}

func (c *Context) WithGit(git GitInfo) *Context {
	c.Git = git
	return c
}

func (c *Context) WithClock(now func() time.Time) *Context {
	c.Now = now
	return c
}

// BlockValue returns the value produced by an earlier block of the template
// being generated.
func (c *Context) BlockValue(name string) (string, bool) {
	v, ok := c.blockValues[name]
	return v, ok
}

func (c *Context) setBlockValue(name, value string) {
	if c.blockValues == nil {
		c.blockValues = make(map[string]string)
	}
	c.blockValues[name] = value
}

func (c *Context) resetBlockValues() {
	c.blockValues = make(map[string]string)
}

// merge overlays the set fields of other onto c. Counters are merged key by
// key with values from other winning.
func (c *Context) merge(other *Context) {
	if other == nil {
		return
	}
	if other.CurrentVersion != "" {
		c.CurrentVersion = other.CurrentVersion
	}
	if other.CurrentCommit != "" {
		c.CurrentCommit = other.CurrentCommit
	}
	if other.CurrentBranch != "" {
		c.CurrentBranch = other.CurrentBranch
	}
	if other.BuildNumber != nil {
		build := *other.BuildNumber
		c.BuildNumber = &build
	}
	if other.Git != nil {
		c.Git = other.Git
	}
	if other.Now != nil {
		c.Now = other.Now
	}
	for name, value := range other.Counters {
		c.WithCounter(name, value)
	}
}

func (c *Context) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
