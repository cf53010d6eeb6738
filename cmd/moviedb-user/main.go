// Command moviedb-user manages the accounts allowed to log into moviedb.
//
// Usage:
//
//	moviedb-user [-data-dir DIR] add USER      # password read from stdin
//	moviedb-user [-data-dir DIR] passwd USER   # password read from stdin
//	moviedb-user [-data-dir DIR] del USER
//	moviedb-user [-data-dir DIR] list
//
// Changes go through the same locked store as the server so they are safe to
// run while it is up.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/storage"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "moviedb-user: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	dataDir := flag.String("data-dir", "./data", "Data directory")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: moviedb-user [flags] add|passwd|del USER\n       moviedb-user [flags] list\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	users, err := storage.NewUserService(filepath.Join(*dataDir, "users.json"), &jsondb.Options{})
	if err != nil {
		return fmt.Errorf("failed to open users: %w", err)
	}
	return run(ctx, users, flag.Args(), os.Stdin, os.Stdout)
}

func run(ctx context.Context, users *storage.UserService, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "list":
		if len(args) != 0 {
			return fmt.Errorf("list takes no argument")
		}
		for _, u := range users.List(ctx) {
			if _, err := fmt.Fprintln(stdout, u.Username); err != nil {
				return err
			}
		}
		return nil
	case "add", "passwd":
		if len(args) != 1 {
			return fmt.Errorf("%s takes exactly one username", cmd)
		}
		_, err := users.Get(ctx, args[0])
		exists := err == nil
		if cmd == "add" && exists {
			return fmt.Errorf("user %q already exists", args[0])
		}
		if cmd == "passwd" && !exists {
			return fmt.Errorf("user %q: %w", args[0], storage.ErrUserNotFound)
		}
		password, err := readPassword(stdin, stdout)
		if err != nil {
			return err
		}
		u, err := users.SetPassword(ctx, args[0], password)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "saved %s\n", u.Username)
		return err
	case "del":
		if len(args) != 1 {
			return fmt.Errorf("del takes exactly one username")
		}
		if err := users.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("user %q: %w", args[0], err)
		}
		_, err := fmt.Fprintf(stdout, "deleted %s\n", args[0])
		return err
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// readPassword reads a single line. The prompt is only shown on a terminal.
func readPassword(stdin io.Reader, stdout io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		if _, err := fmt.Fprint(stdout, "Password: "); err != nil {
			return "", err
		}
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", storage.ErrPasswordRequired
	}
	return line, nil
}
