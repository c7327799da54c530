package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
)

var (
	// ErrUnknownSubcommand 未知的 migrate 子命令
	ErrUnknownSubcommand = errors.New("unknown migrate subcommand")
	// ErrDirtyDatabase 上次迁移中断，需先 force 到已知版本
	ErrDirtyDatabase = errors.New("database is dirty")
)

// subcommand 一个 migrate 子命令
type subcommand struct {
	arg     string // 位置参数名，空表示不接受参数
	summary string
	// mutates 会改变 schema，执行前检查 dirty
	mutates bool
	run     func(c *CLI, ctx context.Context, n int) error
}

var subcommands = map[string]subcommand{
	"up": {summary: "Apply all pending migrations", mutates: true, run: (*CLI).up},
	"down": {summary: "Roll back the last migration", mutates: true, run: func(c *CLI, ctx context.Context, _ int) error {
		return c.change(ctx, "rolled back 1", c.migrator.Down)
	}},
	"reset": {summary: "Roll back every migration", mutates: true, run: func(c *CLI, ctx context.Context, _ int) error {
		return c.change(ctx, "rolled back all", c.migrator.DownAll)
	}},
	"steps":   {arg: "n", summary: "Apply (n>0) or roll back (n<0) n migrations", mutates: true, run: (*CLI).steps},
	"goto":    {arg: "version", summary: "Migrate up or down to version", mutates: true, run: (*CLI).gotoVersion},
	"force":   {arg: "version", summary: "Mark version as applied and clear the dirty flag", run: (*CLI).force},
	"version": {summary: "Print the current version", run: (*CLI).version},
	"status":  {summary: "List migrations with their state", run: (*CLI).status},
}

// PrintUsage 输出子命令列表
func PrintUsage(w io.Writer) {
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range names {
		sc := subcommands[name]
		usage := name
		if sc.arg != "" {
			usage += " <" + sc.arg + ">"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", usage, sc.summary)
	}
	_ = tw.Flush()
}

// CLI 面向终端的迁移操作，输出写到 output
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 输出默认写到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 替换输出
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Run 执行一个子命令，例如 ["up"]、["goto", "2"]
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing subcommand", ErrUnknownSubcommand)
	}
	sc, ok := subcommands[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubcommand, args[0])
	}

	var n int
	if sc.arg != "" {
		if len(args) < 2 {
			return fmt.Errorf("%s requires <%s>", args[0], sc.arg)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%s: invalid <%s> %q", args[0], sc.arg, args[1])
		}
		n = v
	}

	if sc.mutates {
		if err := c.checkClean(ctx); err != nil {
			return err
		}
	}
	return sc.run(c, ctx, n)
}

func (c *CLI) checkClean(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d, run `migrate force <version>` after fixing the schema", ErrDirtyDatabase, version)
	}
	return nil
}

// change 执行一次变更并打印前后版本
func (c *CLI) change(ctx context.Context, what string, apply func(context.Context) error) error {
	from, _, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if err := apply(ctx); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	to, _, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	fmt.Fprintf(c.output, "%s: version %d -> %d\n", what, from, to)
	return nil
}

func (c *CLI) up(ctx context.Context, _ int) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	if info.PendingMigrations == 0 {
		fmt.Fprintf(c.output, "storage schema up to date at version %d\n", info.CurrentVersion)
		return nil
	}
	return c.change(ctx, fmt.Sprintf("applied %d", info.PendingMigrations), c.migrator.Up)
}

func (c *CLI) steps(ctx context.Context, n int) error {
	if n == 0 {
		return errors.New("steps: n must not be zero")
	}
	what := fmt.Sprintf("applied %d", n)
	if n < 0 {
		what = fmt.Sprintf("rolled back %d", -n)
	}
	return c.change(ctx, what, func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

func (c *CLI) gotoVersion(ctx context.Context, v int) error {
	if v < 0 {
		return fmt.Errorf("goto: version must not be negative: %d", v)
	}
	return c.change(ctx, fmt.Sprintf("goto %d", v), func(ctx context.Context) error {
		return c.migrator.Goto(ctx, uint(v))
	})
}

func (c *CLI) force(ctx context.Context, v int) error {
	if err := c.migrator.Force(ctx, v); err != nil {
		return fmt.Errorf("force: %w", err)
	}
	fmt.Fprintf(c.output, "forced version %d, dirty flag cleared\n", v)
	return nil
}

func (c *CLI) version(ctx context.Context, _ int) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.output, "no migrations applied")
	case dirty:
		fmt.Fprintf(c.output, "version %d (dirty)\n", version)
	default:
		fmt.Fprintf(c.output, "version %d\n", version)
	}
	return nil
}

// status 每个迁移一行，末尾汇总
func (c *CLI) status(ctx context.Context, _ int) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "no migrations embedded")
		return nil
	}

	applied := 0
	tw := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%d/%d applied\n", applied, len(statuses))
	return nil
}
