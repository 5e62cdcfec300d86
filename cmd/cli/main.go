package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/nickyhof/CommitStore"
	"github.com/nickyhof/CommitStore/core"
	"github.com/nickyhof/CommitStore/ps"
	"github.com/nickyhof/CommitStore/source"
	"github.com/sirupsen/logrus"
)

const (
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI runs one subcommand against a repository
type CLI struct {
	stdout io.Writer
	stderr io.Writer
	ctx    context.Context
}

type command struct {
	name    string
	summary string
	run     func(cli *CLI, args []string) error
}

var commands = []command{
	{"init", "create an empty repository", (*CLI).cmdInit},
	{"commit", "commit changes to a branch", (*CLI).cmdCommit},
	{"cat", "print or export a file", (*CLI).cmdCat},
	{"ls", "list a directory", (*CLI).cmdLs},
	{"log", "show history", (*CLI).cmdLog},
	{"branch", "list, create or delete branches", (*CLI).cmdBranch},
	{"tag", "list or create snapshots", (*CLI).cmdTag},
	{"restore", "commit an earlier tree on top of a branch", (*CLI).cmdRestore},
	{"remote", "list, add or remove remotes", (*CLI).cmdRemote},
	{"push", "push a branch to a remote", (*CLI).cmdPush},
	{"fetch", "fetch branches from a remote", (*CLI).cmdFetch},
}

func main() {
	logrus.SetLevel(logrus.WarnLevel)
	cli := &CLI{stdout: os.Stdout, stderr: os.Stderr, ctx: context.Background()}
	os.Exit(cli.Run(os.Args[1:]))
}

// Run dispatches args to a subcommand and returns the exit code
func (cli *CLI) Run(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		cli.printUsage()
		return 2
	}
	if args[0] == "version" {
		fmt.Fprintf(cli.stdout, "CommitStore CLI v%s\n", Version)
		return 0
	}

	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		if err := cmd.run(cli, args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 2
			}
			fmt.Fprintf(cli.stderr, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
			return 1
		}
		return 0
	}

	fmt.Fprintf(cli.stderr, "%s✗ Unknown command: %s (run 'commitstore help')%s\n", ErrorColor, args[0], ResetColor)
	return 2
}

func (cli *CLI) printUsage() {
	fmt.Fprintf(cli.stdout, "%sCommitStore v%s%s\n\n", BoldColor, Version, ResetColor)
	fmt.Fprintln(cli.stdout, "Usage: commitstore <command> [flags] [args]")
	fmt.Fprintln(cli.stdout)
	for _, cmd := range commands {
		fmt.Fprintf(cli.stdout, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(cli.stdout)
}

func (cli *CLI) success(format string, args ...any) {
	fmt.Fprintf(cli.stdout, "%s✓ %s%s\n", SuccessColor, fmt.Sprintf(format, args...), ResetColor)
}

// repoFlags are shared by every subcommand
type repoFlags struct {
	repo  string
	name  string
	email string
}

func (cli *CLI) newFlagSet(name string, rf *repoFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.stderr)
	fs.StringVar(&rf.repo, "repo", envOr("COMMITSTORE_REPO", "."), "Repository directory")
	fs.StringVar(&rf.name, "name", envOr("COMMITSTORE_AUTHOR_NAME", "CommitStore"), "Author name")
	fs.StringVar(&rf.email, "email", envOr("COMMITSTORE_AUTHOR_EMAIL", "cli@commitstore.local"), "Author email")
	return fs
}

func (rf *repoFlags) identity() core.Identity {
	return core.Identity{Name: rf.name, Email: rf.email}
}

func (rf *repoFlags) open() (*ps.Persistence, error) {
	return ps.OpenRepo(rf.repo)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// s3Flags configure access to s3:// sources
type s3Flags struct {
	config source.S3Config
}

func (sf *s3Flags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.config.Region, "s3Region", "", "S3 region (default from AWS config)")
	fs.StringVar(&sf.config.Endpoint, "s3Endpoint", "", "S3-compatible endpoint URL")
	fs.StringVar(&sf.config.AccessKey, "s3AccessKey", "", "S3 access key (default from AWS config)")
	fs.StringVar(&sf.config.SecretKey, "s3SecretKey", "", "S3 secret key (default from AWS config)")
}

// listFlag collects a repeated string flag
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func (cli *CLI) cmdInit(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("init", &rf)
	message := fs.String("m", "Initial commit", "Message of the root commit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := ps.CreateEmptyRepo(rf.repo, core.OptionsFor(rf.identity(), *message))
	if err != nil {
		return err
	}
	tip, err := persistence.BranchTip(ps.DefaultBranch)
	if err != nil {
		return err
	}
	cli.success("Initialized repository in %s at %s", rf.repo, shortId(tip))
	return nil
}

func (cli *CLI) cmdCommit(args []string) error {
	var (
		rf                     repoFlags
		sf                     s3Flags
		creates, updates, dels listFlag
	)
	fs := cli.newFlagSet("commit", &rf)
	sf.register(fs)
	branch := fs.String("branch", ps.DefaultBranch, "Branch to commit to")
	parent := fs.String("parent", "", "Commit the changes were made against (default: branch tip)")
	message := fs.String("m", "", "Commit message")
	mergeMessage := fs.String("mergeMessage", "", "Message for the merge commit if the branch moved")
	fs.Var(&creates, "create", "path=source to create (repeatable)")
	fs.Var(&updates, "update", "path=source to update (repeatable)")
	fs.Var(&dels, "delete", "path to delete (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *message == "" {
		return errors.New("commit requires a message (-m)")
	}

	var changes []core.Change
	for _, group := range []struct {
		op      string
		entries listFlag
	}{{"create", creates}, {"update", updates}} {
		for _, entry := range group.entries {
			change, err := cli.loadChange(group.op, entry, &sf.config)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
	}
	for _, p := range dels {
		changes = append(changes, core.Delete(p))
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}

	opts := core.OptionsFor(rf.identity(), *message)
	opts.MergeMessage = *mergeMessage
	session := CommitStore.Open(persistence).Session(rf.identity())
	txn, err := session.CommitWithOptions(*branch, *parent, changes, opts)
	if err != nil {
		return err
	}

	if len(txn.Parents) > 1 {
		cli.success("Merged into %s at %s (%d changes)", *branch, shortId(txn.Id), len(changes))
	} else {
		cli.success("Committed to %s at %s (%d changes)", *branch, shortId(txn.Id), len(changes))
	}
	return nil
}

// loadChange turns "path=source" into a change whose content is read from source
func (cli *CLI) loadChange(opName, entry string, cfg *source.S3Config) (core.Change, error) {
	op, err := core.ParseOperation(opName)
	if err != nil {
		return core.Change{}, err
	}
	target, location, ok := strings.Cut(entry, "=")
	if !ok || target == "" || location == "" {
		return core.Change{}, fmt.Errorf("expected path=source, got %q", entry)
	}

	content, err := source.Load(cli.ctx, location, cfg)
	if err != nil {
		return core.Change{}, err
	}
	return core.Change{Operation: op, Path: target, Content: content}, nil
}

func (cli *CLI) cmdCat(args []string) error {
	var (
		rf repoFlags
		sf s3Flags
	)
	fs := cli.newFlagSet("cat", &rf)
	sf.register(fs)
	rev := fs.String("rev", "HEAD", "Revision to read")
	out := fs.String("o", "", "Write the file to this path or URL instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: cat [flags] <path>")
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}
	content, err := persistence.Contents(*rev, fs.Arg(0))
	if err != nil {
		return err
	}

	if *out != "" {
		if err := source.Store(cli.ctx, *out, &sf.config, content); err != nil {
			return err
		}
		cli.success("Wrote %s to %s", fs.Arg(0), *out)
		return nil
	}
	_, err = cli.stdout.Write(content)
	return err
}

func (cli *CLI) cmdLs(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("ls", &rf)
	rev := fs.String("rev", "HEAD", "Revision to read")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}
	entries, err := persistence.ListTree(*rev, fs.Arg(0))
	if err != nil {
		return err
	}

	for _, entry := range entries {
		kind := "blob"
		name := entry.Name
		if entry.IsDir {
			kind = "tree"
			name += "/"
		}
		fmt.Fprintf(cli.stdout, "%s %s  %s\n", kind, shortId(entry.Id), name)
	}
	return nil
}

func (cli *CLI) cmdLog(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("log", &rf)
	rev := fs.String("rev", "HEAD", "Revision to start from")
	limit := fs.Int("n", 0, "Maximum number of commits (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}
	transactions, err := persistence.TransactionsFrom(*rev, *limit)
	if err != nil {
		return err
	}

	for _, txn := range transactions {
		merge := ""
		if len(txn.Parents) > 1 {
			merge = " (merge)"
		}
		fmt.Fprintf(cli.stdout, "%s%s%s%s %s\n", BoldColor, shortId(txn.Id), ResetColor, merge, firstLine(txn.Message))
		fmt.Fprintf(cli.stdout, "    %s, %s\n", txn.Author, txn.When.Format("2006-01-02 15:04:05 -0700"))
	}
	return nil
}

func (cli *CLI) cmdBranch(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("branch", &rf)
	from := fs.String("from", "", "Revision the new branch starts at (default HEAD)")
	del := fs.Bool("d", false, "Delete the named branch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}

	switch {
	case fs.NArg() == 0:
		branches, err := persistence.ListBranches()
		if err != nil {
			return err
		}
		current, _ := persistence.CurrentBranch()
		sort.Strings(branches)
		for _, branch := range branches {
			marker := " "
			if branch == current {
				marker = "*"
			}
			fmt.Fprintf(cli.stdout, "%s %s\n", marker, branch)
		}
		return nil

	case *del:
		if err := persistence.DeleteBranch(fs.Arg(0)); err != nil {
			return err
		}
		cli.success("Deleted branch %s", fs.Arg(0))
		return nil

	default:
		tip, err := persistence.Branch(fs.Arg(0), *from)
		if err != nil {
			return err
		}
		cli.success("Created branch %s at %s", fs.Arg(0), shortId(tip))
		return nil
	}
}

func (cli *CLI) cmdTag(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("tag", &rf)
	rev := fs.String("rev", "HEAD", "Revision to tag")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}

	if fs.NArg() == 0 {
		snapshots, err := persistence.ListSnapshots()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(snapshots))
		for name := range snapshots {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(cli.stdout, "%s %s\n", shortId(snapshots[name]), name)
		}
		return nil
	}

	id, err := persistence.Snapshot(fs.Arg(0), *rev)
	if err != nil {
		return err
	}
	cli.success("Tagged %s as %s", shortId(id), fs.Arg(0))
	return nil
}

func (cli *CLI) cmdRestore(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("restore", &rf)
	branch := fs.String("branch", ps.DefaultBranch, "Branch to restore")
	message := fs.String("m", "", "Commit message (default: Restore <branch> to <rev>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: restore [flags] <rev>")
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}
	txn, err := persistence.Restore(*branch, fs.Arg(0), core.OptionsFor(rf.identity(), *message))
	if err != nil {
		return err
	}
	cli.success("Restored %s to %s at %s", *branch, fs.Arg(0), shortId(txn.Id))
	return nil
}

func (cli *CLI) cmdRemote(args []string) error {
	var rf repoFlags
	fs := cli.newFlagSet("remote", &rf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}

	switch fs.Arg(0) {
	case "", "list":
		remotes, err := persistence.ListRemotes()
		if err != nil {
			return err
		}
		for _, remote := range remotes {
			fmt.Fprintf(cli.stdout, "%s\t%s\n", remote.Name, strings.Join(remote.URLs, ", "))
		}
		return nil

	case "add":
		if fs.NArg() != 3 {
			return errors.New("usage: remote add <name> <url>")
		}
		if err := persistence.AddRemote(fs.Arg(1), fs.Arg(2)); err != nil {
			return err
		}
		cli.success("Added remote %s", fs.Arg(1))
		return nil

	case "remove", "rm":
		if fs.NArg() != 2 {
			return errors.New("usage: remote remove <name>")
		}
		if err := persistence.RemoveRemote(fs.Arg(1)); err != nil {
			return err
		}
		cli.success("Removed remote %s", fs.Arg(1))
		return nil

	default:
		return fmt.Errorf("unknown remote action: %s", fs.Arg(0))
	}
}

// authFlags select credentials for push and fetch
type authFlags struct {
	token    string
	sshKey   string
	username string
	password string
}

func (af *authFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&af.token, "token", os.Getenv("COMMITSTORE_GIT_TOKEN"), "Token for HTTPS remotes")
	fs.StringVar(&af.sshKey, "sshKey", "", "Private key file for SSH remotes")
	fs.StringVar(&af.username, "user", "", "Username for basic auth")
	fs.StringVar(&af.password, "password", "", "Password for basic auth")
}

func (af *authFlags) auth() *ps.RemoteAuth {
	switch {
	case af.token != "":
		return &ps.RemoteAuth{Type: ps.AuthTypeToken, Token: af.token}
	case af.sshKey != "":
		return &ps.RemoteAuth{Type: ps.AuthTypeSSH, KeyPath: af.sshKey, Passphrase: af.password}
	case af.username != "":
		return &ps.RemoteAuth{Type: ps.AuthTypeBasic, Username: af.username, Password: af.password}
	default:
		return nil
	}
}

func (cli *CLI) cmdPush(args []string) error {
	var (
		rf repoFlags
		af authFlags
	)
	fs := cli.newFlagSet("push", &rf)
	af.register(fs)
	remote := fs.String("remote", ps.DefaultRemote, "Remote name")
	branch := fs.String("branch", "", "Branch to push (default: current branch)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}
	if err := persistence.Push(*remote, *branch, af.auth()); err != nil {
		return err
	}
	cli.success("Pushed to %s", *remote)
	return nil
}

func (cli *CLI) cmdFetch(args []string) error {
	var (
		rf repoFlags
		af authFlags
	)
	fs := cli.newFlagSet("fetch", &rf)
	af.register(fs)
	remote := fs.String("remote", ps.DefaultRemote, "Remote name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	persistence, err := rf.open()
	if err != nil {
		return err
	}
	if err := persistence.Fetch(*remote, af.auth()); err != nil {
		return err
	}
	cli.success("Fetched from %s", *remote)
	return nil
}

func shortId(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return line
}
