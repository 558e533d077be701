// Package cli implements the canvas operator command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/media"
	"campuscanvas/pkg/project"
	"campuscanvas/pkg/session"
	"campuscanvas/services/portal/internal/app"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage error")

// ErrNotLoggedIn is returned when a command needs a session and the slot is empty.
var ErrNotLoggedIn = errors.New("not logged in, run: canvas login <username>")

// readPassword is replaced in tests.
var readPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }

// CLI runs one command against the workflow.
type CLI struct {
	app      *app.App
	sessions *session.Manager
	in       *bufio.Reader
	out      io.Writer
}

// New builds a CLI reading answers from in and printing to out.
func New(core *app.App, sessions *session.Manager, in io.Reader, out io.Writer) *CLI {
	return &CLI{app: core, sessions: sessions, in: bufio.NewReader(in), out: out}
}

type command struct {
	usage string
	run   func(c *CLI, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"login":        {"login <username>", (*CLI).login},
	"logout":       {"logout", (*CLI).logout},
	"whoami":       {"whoami", (*CLI).whoami},
	"submit":       {"submit -title T -description D [-category C] [-link URL] image...", (*CLI).submit},
	"list":         {"list [-scope approved|mine|all] [-status S] [-category C] [-q text]", (*CLI).list},
	"show":         {"show <project-id>", (*CLI).show},
	"approve":      {"approve <project-id>", (*CLI).approve},
	"reject":       {"reject <project-id>", (*CLI).reject},
	"update-media": {"update-media [-yes] <project-id> image...", (*CLI).updateMedia},
	"delete":       {"delete [-yes] <project-id>", (*CLI).remove},
	"useradd":      {"useradd -username U -name N [-role student|admin]", (*CLI).useradd},
	"users":        {"users", (*CLI).users},
	"stats":        {"stats", (*CLI).stats},
}

var commandOrder = []string{"login", "logout", "whoami", "submit", "list", "show", "approve", "reject", "update-media", "delete", "useradd", "users", "stats"}

// Run dispatches args[0] to a command.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.Usage()
		return ErrUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		c.Usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	err := cmd.run(c, ctx, args[1:])
	if errors.Is(err, ErrUsage) {
		fmt.Fprintf(c.out, "usage: canvas %s\n", cmd.usage)
	}
	return err
}

// Usage prints the command list.
func (c *CLI) Usage() {
	fmt.Fprintln(c.out, "usage: canvas [-config path] <command> [args]")
	for _, name := range commandOrder {
		fmt.Fprintf(c.out, "  %s\n", commands[name].usage)
	}
}

// current resumes the persisted session with the account's stored role.
func (c *CLI) current(ctx context.Context) (domain.Session, error) {
	s, ok, err := c.sessions.Resume(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, ErrNotLoggedIn
	}
	return s, nil
}

func (c *CLI) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	fmt.Fprint(c.out, "Password: ")
	pw, err := readPassword()
	fmt.Fprintln(c.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	s, err := c.sessions.Login(ctx, args[0], string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in as %s (%s)\n", s.DisplayName, s.Role)
	return nil
}

func (c *CLI) logout(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	if err := c.sessions.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Logged out")
	return nil
}

func (c *CLI) whoami(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\t%s\t%s\n", s.ID, s.DisplayName, s.Role)
	return nil
}

func (c *CLI) submit(ctx context.Context, args []string) error {
	fs := c.flagSet("submit")
	title := fs.String("title", "", "project title")
	description := fs.String("description", "", "project description")
	category := fs.String("category", string(domain.DefaultCategory), "project category")
	link := fs.String("link", "", "project URL")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	files, err := openFiles(fs.Args())
	if err != nil {
		return err
	}
	p, err := c.app.Submit(ctx, s, app.Submission{
		Title:       *title,
		Description: *description,
		Category:    domain.Category(*category),
		Link:        *link,
	}, files)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\t%s\n", p.ID, p.Status)
	return nil
}

func (c *CLI) list(ctx context.Context, args []string) error {
	fs := c.flagSet("list")
	scope := fs.String("scope", "approved", "approved, mine or all")
	status := fs.String("status", "", "filter by status (all scope only)")
	category := fs.String("category", "", "filter by category")
	query := fs.String("q", "", "filter by title substring")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		return ErrUsage
	}
	filter, err := project.ParseFilter(*category, *query)
	if err != nil {
		return err
	}
	var projects []domain.Project
	switch *scope {
	case "approved":
		projects, err = c.app.SearchApproved(ctx, filter)
	case "mine", "all":
		s, serr := c.current(ctx)
		if serr != nil {
			return serr
		}
		if *scope == "mine" {
			projects, err = c.app.ListMine(ctx, s)
		} else {
			projects, err = c.app.ListAll(ctx, s)
		}
	default:
		return ErrUsage
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCATEGORY\tTITLE\tAUTHOR\tIMAGES")
	for _, p := range filter.Apply(projects) {
		if *status != "" && string(p.Status) != *status {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", p.ID, p.Status, p.Category, p.Title, p.Author, len(p.Gallery))
	}
	return tw.Flush()
}

func (c *CLI) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	s, _, err := c.sessions.Resume(ctx)
	if err != nil {
		return err
	}
	p, err := c.app.Get(ctx, s, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ID:          %s\n", p.ID)
	fmt.Fprintf(c.out, "Title:       %s\n", p.Title)
	fmt.Fprintf(c.out, "Status:      %s\n", p.Status)
	fmt.Fprintf(c.out, "Category:    %s\n", p.Category)
	fmt.Fprintf(c.out, "Author:      %s\n", p.Author)
	if p.Link != "" {
		fmt.Fprintf(c.out, "Link:        %s\n", p.Link)
	}
	fmt.Fprintf(c.out, "Images:      %d\n", len(p.Gallery))
	fmt.Fprintf(c.out, "Views:       %d\n", p.Views)
	fmt.Fprintf(c.out, "Description: %s\n", p.Description)
	return nil
}

func (c *CLI) approve(ctx context.Context, args []string) error {
	return c.moderate(ctx, args, c.app.Approve)
}

func (c *CLI) reject(ctx context.Context, args []string) error {
	return c.moderate(ctx, args, c.app.Reject)
}

func (c *CLI) moderate(ctx context.Context, args []string, fn func(context.Context, domain.Session, string) error) error {
	if len(args) != 1 {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, s, args[0])
}

func (c *CLI) updateMedia(ctx context.Context, args []string) error {
	fs := c.flagSet("update-media")
	yes := fs.Bool("yes", false, "replace without asking")
	if err := fs.Parse(args); err != nil || fs.NArg() < 1 {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	files, err := openFiles(fs.Args()[1:])
	if err != nil {
		return err
	}
	confirm := c.confirmer()
	if *yes {
		confirm = app.Answer(true)
	}
	_, err = c.app.UpdateMedia(ctx, s, fs.Arg(0), files, confirm)
	return err
}

func (c *CLI) remove(ctx context.Context, args []string) error {
	fs := c.flagSet("delete")
	yes := fs.Bool("yes", false, "delete without asking")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	confirm := c.confirmer()
	if *yes {
		confirm = app.Answer(true)
	}
	return c.app.Remove(ctx, s, fs.Arg(0), confirm)
}

func (c *CLI) useradd(ctx context.Context, args []string) error {
	fs := c.flagSet("useradd")
	username := fs.String("username", "", "login id")
	name := fs.String("name", "", "full name")
	role := fs.String("role", string(domain.RoleStudent), "student or admin")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 || *username == "" {
		return ErrUsage
	}
	// An empty store accepts its first account without a session.
	s, _, err := c.sessions.Resume(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(c.out, "New password: ")
	pw, err := readPassword()
	fmt.Fprintln(c.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(c.out, "Repeat password: ")
	again, err := readPassword()
	fmt.Fprintln(c.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if string(pw) != string(again) {
		return errors.New("passwords do not match")
	}
	_, err = c.app.RegisterUser(ctx, s, app.NewUser{
		Username: *username,
		FullName: *name,
		Password: string(pw),
		Role:     domain.UserRole(*role),
	})
	return err
}

func (c *CLI) users(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	users, err := c.app.ListUsers(ctx, s)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.FullName, u.Role)
	}
	return tw.Flush()
}

func (c *CLI) stats(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	st, err := c.app.Stats(ctx, s)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "total %d\npending %d\napproved %d\nrejected %d\n", st.Total, st.Pending, st.Approved, st.Rejected)
	return nil
}

// confirmer asks on the terminal. Anything but y or yes declines.
func (c *CLI) confirmer() app.Confirmer {
	return app.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		fmt.Fprintf(c.out, "%s [y/N] ", prompt)
		line, err := c.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	})
}

func (c *CLI) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func openFiles(paths []string) ([]media.File, error) {
	files := make([]media.File, 0, len(paths))
	for _, path := range paths {
		f, err := media.FromPath(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
