package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	versionit "github.com/Force67/version-it-ng"
	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
)

// Version will be set by build process
var Version = "dev"

type Globals struct {
	Config           string `short:"c" default:".version-it" help:"Path to config file"`
	StructuredOutput bool   `help:"Output responses in structured JSON format"`
	Verbose          bool   `help:"Enable debug logging"`
	Repo             string `short:"r" help:"Repository path (default: current directory)"`
}

type CLI struct {
	Globals

	Bump     BumpCmd     `cmd:"" help:"Bump the version"`
	Next     NextCmd     `cmd:"" help:"Get the next version without bumping"`
	Craft    CraftCmd    `cmd:"" help:"Craft custom versions using configurable templates"`
	Monorepo MonorepoCmd `cmd:"" help:"Process multiple subprojects in a monorepo"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

func main() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("version-it"),
		kong.Description("Bump, compose and publish version strings for CI pipelines"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	cli.Globals.setupLogging()

	err := ctx.Run(&cli.Globals)
	if err != nil {
		cli.Globals.fail(err)
		os.Exit(1)
	}
}

func (g *Globals) setupLogging() {
	level := log.WarnLevel
	if g.Verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:  level,
		Prefix: "version-it",
	})
	log.SetDefault(logger)
	versionit.SetLogger(logger)
}

func (g *Globals) fail(err error) {
	if g.StructuredOutput {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// output prints data as JSON in structured mode and plain otherwise.
func (g *Globals) output(data map[string]any, plain string) error {
	if g.StructuredOutput {
		data["success"] = true
		return json.NewEncoder(os.Stdout).Encode(data)
	}
	fmt.Println(plain)
	return nil
}

func (g *Globals) configPath() string {
	if g.Config == "" {
		return versionit.DefaultConfigFile
	}
	return g.Config
}

// baseDir is the directory relative config paths are resolved against.
func (g *Globals) baseDir() string {
	return filepath.Dir(g.configPath())
}

// loadConfig reads the tool config, which may also switch on structured
// output.
func (g *Globals) loadConfig() (*versionit.Config, error) {
	cfg, err := versionit.LoadConfigIfExists(g.configPath())
	if err != nil {
		return nil, err
	}
	if cfg != nil && cfg.StructuredOutput {
		g.StructuredOutput = true
	}
	return cfg, nil
}

// openRepo opens the repository at --repo or the working directory. A
// missing repository is not an error; git features are then unavailable.
func (g *Globals) openRepo() *versionit.Repository {
	repoPath := g.Repo
	if repoPath == "" {
		var err error
		repoPath, err = os.Getwd()
		if err != nil {
			log.Debug("getting current directory", "err", err)
			return nil
		}
	}
	repo, err := versionit.OpenRepository(repoPath)
	if err != nil {
		log.Debug("no git repository", "path", repoPath, "err", err)
		return nil
	}
	return repo
}

// versionOptions passes the repository on only when one is open, keeping a
// nil *Repository out of the GitInfo interface.
func versionOptions(channel string, repo *versionit.Repository) []versionit.VersionOption {
	opts := []versionit.VersionOption{versionit.WithChannel(channel)}
	if repo != nil {
		opts = append(opts, versionit.WithGit(repo))
	}
	return opts
}

// BumpFlags are shared by bump and next.
type BumpFlags struct {
	Bump    string `short:"b" required:"" enum:"major,minor,patch" help:"Bump type: major, minor, patch"`
	Version string `short:"v" help:"Current version (default: current version file, first-version or latest tag)"`
	Scheme  string `short:"s" help:"Versioning scheme (default: from config, else semantic)"`
	Channel string `help:"Release channel (stable, beta, nightly, or custom)"`
}

// bumped parses the current version, bumps it and returns the version before
// and after.
func (f *BumpFlags) bumped(cfg *versionit.Config, baseDir string, repo *versionit.Repository) (*versionit.Version, string, error) {
	schemeName := f.Scheme
	channel := f.Channel
	if cfg != nil {
		if schemeName == "" {
			schemeName = cfg.VersioningScheme
		}
		if channel == "" {
			channel = cfg.Channel
		}
	}
	scheme, err := versionit.ParseScheme(schemeName)
	if err != nil {
		return nil, "", err
	}
	kind, err := versionit.ParseBumpKind(f.Bump)
	if err != nil {
		return nil, "", err
	}

	current, err := versionit.ResolveVersion(f.Version, cfg, baseDir, scheme, repo)
	if err != nil {
		return nil, "", err
	}
	v, err := versionit.Parse(current, scheme, versionOptions(channel, repo)...)
	if err != nil {
		return nil, "", fmt.Errorf("parsing version: %w", err)
	}

	previous := v.String()
	if err := v.Bump(kind); err != nil {
		return nil, "", err
	}
	return v, previous, nil
}

// ReleaseFlags select the side effects of a bump.
type ReleaseFlags struct {
	CreateTag bool `help:"Create a git tag after bumping"`
	Commit    bool `help:"Commit version file changes after bumping"`
	DryRun    bool `help:"Show what would happen without making changes"`
}

func printPlan(ops []string) {
	fmt.Println("DRY RUN: Would perform the following operations:")
	for _, op := range ops {
		fmt.Printf("  - %s\n", op)
	}
}

type BumpCmd struct {
	BumpFlags
	ReleaseFlags
}

func (c *BumpCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	repo := g.openRepo()

	v, previous, err := c.bumped(cfg, g.baseDir(), repo)
	if err != nil {
		return err
	}
	next := v.String()

	release := &versionit.Release{Config: cfg, Repo: repo, BaseDir: g.baseDir()}
	if c.DryRun {
		ops := release.Plan(next, c.Commit, c.CreateTag)
		if g.StructuredOutput {
			return g.output(map[string]any{
				"version":          next,
				"previous_version": previous,
				"bump_type":        c.Bump,
				"dry_run":          true,
				"operations":       ops,
			}, next)
		}
		fmt.Println(next)
		printPlan(ops)
		return nil
	}

	if err := release.Apply(next, v.Channel(), c.Commit, c.CreateTag); err != nil {
		return err
	}
	return g.output(map[string]any{
		"version":          next,
		"previous_version": previous,
		"bump_type":        c.Bump,
	}, next)
}

type NextCmd struct {
	BumpFlags
}

func (c *NextCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	v, _, err := c.bumped(cfg, g.baseDir(), g.openRepo())
	if err != nil {
		return err
	}
	return g.output(map[string]any{"version": v.String()}, v.String())
}

type CraftCmd struct {
	Template         string `short:"t" help:"Template name to use (default: the default template)"`
	ConfigFile       string `default:"version-templates.yaml" help:"Path to template configuration file"`
	ListTemplates    bool   `help:"List all available templates"`
	IncrementCounter string `placeholder:"NAME" help:"Increment a counter by name"`
	SetCounter       string `placeholder:"NAME:VALUE" help:"Set a counter to a specific value"`
	BuildNumber      uint32 `help:"Build number for build_number blocks (default: 1)"`
	DryRun           bool   `help:"Show what would happen without making changes"`
}

func (c *CraftCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	composerConfig, err := versionit.LoadComposerConfig(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading template config '%s': %w", c.ConfigFile, err)
	}

	var opts []versionit.ComposerOption
	repo := g.openRepo()
	if repo != nil {
		opts = append(opts, versionit.WithRepository(repo))
	}
	composer := versionit.FromConfig(composerConfig, opts...)

	switch {
	case c.ListTemplates:
		return c.listTemplates(g, composer)
	case c.IncrementCounter != "":
		return c.incrementCounter(g, composer)
	case c.SetCounter != "":
		return c.setCounter(g, composer)
	}

	override := versionit.NewContext()
	if cfg != nil {
		if current, err := cfg.CurrentVersion(g.baseDir()); err == nil {
			override.WithVersion(current)
		}
	}
	if c.BuildNumber > 0 {
		override.WithBuildNumber(c.BuildNumber)
	}

	version, err := composer.GenerateVersionWithContext(c.Template, override)
	if err != nil {
		return fmt.Errorf("generating version: %w", err)
	}
	template := c.Template
	if template == "" {
		template = composer.DefaultTemplate()
	}
	return g.output(map[string]any{
		"version":  version,
		"template": template,
		"counters": composer.Counters(),
	}, version)
}

func (c *CraftCmd) listTemplates(g *Globals, composer *versionit.Composer) error {
	templates := composer.Templates()
	if g.StructuredOutput {
		return g.output(map[string]any{
			"templates":        templates,
			"default_template": composer.DefaultTemplate(),
		}, "")
	}
	fmt.Println("Available templates:")
	for _, name := range templates {
		marker := ""
		if name == composer.DefaultTemplate() {
			marker = " (default)"
		}
		fmt.Printf("  %s%s\n", name, marker)
	}
	return nil
}

func (c *CraftCmd) incrementCounter(g *Globals, composer *versionit.Composer) error {
	name := c.IncrementCounter
	current, _ := composer.Counter(name)
	if current == math.MaxUint32 {
		return fmt.Errorf("counter '%s' is at its maximum value %d", name, current)
	}
	if c.DryRun {
		fmt.Printf("DRY RUN: Would increment counter '%s' from %d to %d\n", name, current, current+1)
		return nil
	}
	value := composer.IncrementCounter(name)
	if err := versionit.SaveCounters(c.ConfigFile, composer.Counters()); err != nil {
		return err
	}
	return g.output(map[string]any{
		"counter":   name,
		"new_value": value,
	}, fmt.Sprintf("Counter '%s' incremented to %d", name, value))
}

func (c *CraftCmd) setCounter(g *Globals, composer *versionit.Composer) error {
	name, value, err := parseCounterSet(c.SetCounter)
	if err != nil {
		return err
	}
	if c.DryRun {
		fmt.Printf("DRY RUN: Would set counter '%s' to %d\n", name, value)
		return nil
	}
	composer.SetCounter(name, value)
	if err := versionit.SaveCounters(c.ConfigFile, composer.Counters()); err != nil {
		return err
	}
	return g.output(map[string]any{
		"counter": name,
		"value":   value,
	}, fmt.Sprintf("Counter '%s' set to %d", name, value))
}

// parseCounterSet parses "name:value".
func parseCounterSet(s string) (string, uint32, error) {
	name, raw, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("invalid counter format %q, expected name:value", s)
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid counter value %q: %w", raw, err)
	}
	return name, uint32(value), nil
}

type MonorepoCmd struct {
	Bump string `short:"b" required:"" enum:"major,minor,patch" help:"Bump type: major, minor, patch"`
	ReleaseFlags
}

func (c *MonorepoCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if cfg == nil || len(cfg.Subprojects) == 0 {
		return fmt.Errorf("no subprojects configured in %s", g.configPath())
	}
	repo := g.openRepo()

	var results []map[string]any
	for _, sub := range cfg.Subprojects {
		result, err := c.bumpSubproject(g, sub, repo)
		if err != nil {
			return fmt.Errorf("subproject %s: %w", sub.Path, err)
		}
		results = append(results, result)
	}

	if g.StructuredOutput {
		return g.output(map[string]any{"subprojects": results}, "")
	}
	return nil
}

func (c *MonorepoCmd) bumpSubproject(g *Globals, sub versionit.Subproject, repo *versionit.Repository) (map[string]any, error) {
	dir := filepath.Join(g.baseDir(), sub.Path)
	configPath := filepath.Join(dir, versionit.DefaultConfigFile)
	if sub.Config != "" {
		configPath = filepath.Join(g.baseDir(), sub.Config)
	}
	subCfg, err := versionit.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Tags from other subprojects would be picked up, so only the
	// subproject's own config supplies the current version.
	flags := BumpFlags{Bump: c.Bump}
	v, previous, err := flags.bumped(subCfg, filepath.Dir(configPath), nil)
	if err != nil {
		return nil, err
	}
	next := v.String()

	release := &versionit.Release{
		Config:    subCfg,
		Repo:      repo,
		BaseDir:   filepath.Dir(configPath),
		TagPrefix: filepath.ToSlash(filepath.Clean(sub.Path)) + "/",
	}
	result := map[string]any{
		"path":             sub.Path,
		"version":          next,
		"previous_version": previous,
	}

	if c.DryRun {
		ops := release.Plan(next, c.Commit, c.CreateTag)
		result["operations"] = ops
		if !g.StructuredOutput {
			fmt.Printf("%s: %s\n", sub.Path, next)
			printPlan(ops)
		}
		return result, nil
	}

	if err := release.Apply(next, v.Channel(), c.Commit, c.CreateTag); err != nil {
		return nil, err
	}
	if !g.StructuredOutput {
		fmt.Printf("%s: %s\n", sub.Path, next)
	}
	return result, nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	if g.StructuredOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"version": Version,
			"name":    "version-it",
		})
	}
	fmt.Printf("version-it version %s\n", Version)
	return nil
}
