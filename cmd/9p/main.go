// Command 9p is an interactive client for 9P file services. It connects to
// the given address and either runs a single command or drops into a
// readline shell.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/ixpkit/ixp"
	"github.com/ixpkit/ixp/ninep"
	"github.com/ixpkit/ixp/stream"
	"github.com/mitchellh/go-homedir"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	user    = kingpin.Flag("user", "user name to attach as (uname)").Short('u').Default("nobody").String()
	service = kingpin.Flag("service", "service name to attach to (aname)").Short('s').String()
	timeout = kingpin.Flag("timeout", "read timeout for tail").Short('t').Default("10s").Duration()
	debug   = kingpin.Flag("debug", "enable debug logging").Short('d').Bool()
	address = kingpin.Arg("address", "dial string, for example tcp!host!564 or unix!/tmp/ns.user/wmii").Required().String()
	command = kingpin.Arg("command", "command to run (disables interactive mode)").Strings()
)

type shell struct {
	c           *ixp.Client
	cwd         string
	interactive bool
	confirm     func(prompt string) bool
}

func (sh *shell) resolve(name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Join(sh.cwd, name)
}

func (sh *shell) ls(args []string) error {
	long := false
	if len(args) > 0 && args[0] == "-l" {
		long = true
		args = args[1:]
	}
	name := sh.cwd
	if len(args) > 0 {
		name = sh.resolve(args[0])
	}

	entries, err := sh.c.ReadDir(name)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
	for _, e := range entries {
		if long {
			fmt.Printf("%s %10d %s %s\n", e.ModeString(), e.Size(), e.TimeString(), e.Name())
		} else {
			fmt.Println(e.Name())
		}
	}
	return nil
}

func (sh *shell) cd(args []string) error {
	if len(args) == 0 {
		sh.cwd = "/"
		return nil
	}
	name := sh.resolve(args[0])
	fi, err := sh.c.Stat(name)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: not a directory", name)
	}
	sh.cwd = name
	return nil
}

func (sh *shell) cat(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: cat file...")
	}
	for _, arg := range args {
		f, err := sh.c.Open(sh.resolve(arg), ninep.OREAD)
		if err != nil {
			return err
		}
		_, err = io.Copy(os.Stdout, f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) echo(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: echo file [text...]")
	}
	data := strings.Join(args[1:], " ") + "\n"
	return sh.c.WriteFile(sh.resolve(args[0]), []byte(data))
}

func (sh *shell) touch(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: touch file...")
	}
	for _, arg := range args {
		if err := sh.c.Create(sh.resolve(arg), 0o644, nil); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) mkdir(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: mkdir dir...")
	}
	for _, arg := range args {
		if err := sh.c.Create(sh.resolve(arg), 0o755|ninep.DMDIR, nil); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) rm(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rm file...")
	}
	for _, arg := range args {
		name := sh.resolve(arg)
		if sh.interactive && !sh.confirm(fmt.Sprintf("remove %s?", name)) {
			continue
		}
		if err := sh.c.Remove(name); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shell) stat(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: stat file...")
	}
	for _, arg := range args {
		fi, err := sh.c.Stat(sh.resolve(arg))
		if err != nil {
			return err
		}
		stat := fi.Stat
		fmt.Printf("%s %s %s %s %d %s\n",
			fi.ModeString(), stat.UID, stat.GID, fi.TimeString(), fi.Size(), fi.Name())
	}
	return nil
}

// tail streams the lines of a file as they appear, the way one follows a
// window manager's event file. Each timeout asks whether to keep waiting;
// in non-interactive mode the first timeout ends the tail.
func (sh *shell) tail(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tail file")
	}
	lines, err := sh.c.Lines(sh.resolve(args[0]))
	if err != nil {
		return err
	}
	defer lines.Close()

	extend := func() time.Duration {
		if sh.interactive && sh.confirm(fmt.Sprintf("no data for %s, keep waiting?", *timeout)) {
			return *timeout
		}
		return 0
	}
	for {
		line, err := lines.Next(*timeout, extend)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, stream.ErrTimeout):
			fmt.Fprintln(os.Stderr, "tail: timed out")
			return nil
		case err != nil:
			return err
		}
		fmt.Println(line)
	}
}

func (sh *shell) get(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: get remote local")
	}
	remote := sh.resolve(args[0])

	fi, err := sh.c.Stat(remote)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s: is a directory", remote)
	}
	src, err := sh.c.Open(remote, ninep.OREAD)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer dst.Close()

	bar := progressbar.DefaultBytes(fi.Size(), "downloading")
	if _, err := io.Copy(io.MultiWriter(dst, bar), src); err != nil {
		return err
	}
	return dst.Close()
}

func (sh *shell) put(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: put local remote")
	}
	src, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer src.Close()
	local, err := src.Stat()
	if err != nil {
		return err
	}

	remote := sh.resolve(args[1])
	dst, err := sh.c.Open(remote, ninep.OWRITE|ninep.OTRUNC)
	if err != nil {
		// The file may not exist yet; create it in the parent.
		if err := sh.c.Create(remote, 0o644, nil); err != nil {
			return err
		}
		if dst, err = sh.c.Open(remote, ninep.OWRITE|ninep.OTRUNC); err != nil {
			return err
		}
	}
	defer dst.Close()

	bar := progressbar.DefaultBytes(local.Size(), "uploading")
	if _, err := io.Copy(io.MultiWriter(dst, bar), src); err != nil {
		return err
	}
	return nil
}

func historyFile() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return path.Join(home, ".9p_history")
}

func main() {
	kingpin.Parse()

	config := ixp.Config{
		Address: *address,
		User:    *user,
		Service: *service,
	}
	c, err := ixp.NewClient(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "9p: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		c.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := c.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "9p: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	sh := &shell{
		c:       c,
		cwd:     "/",
		confirm: func(string) bool { return false },
	}
	quit := false
	cmds := map[string]func([]string) error{
		"ls":    sh.ls,
		"cd":    sh.cd,
		"pwd":   func([]string) error { fmt.Println(sh.cwd); return nil },
		"cat":   sh.cat,
		"echo":  sh.echo,
		"touch": sh.touch,
		"mkdir": sh.mkdir,
		"rm":    sh.rm,
		"stat":  sh.stat,
		"tail":  sh.tail,
		"get":   sh.get,
		"put":   sh.put,
		"quit":  func([]string) error { quit = true; return nil },
	}

	run := func(name string, args []string) {
		f, ok := cmds[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "9p: no such command: %s\n", name)
			return
		}
		if err := f(args); err != nil {
			fmt.Fprintf(os.Stderr, "9p: %s: %v\n", name, err)
		}
	}

	if len(*command) > 0 {
		run((*command)[0], (*command)[1:])
		return
	}

	completer := readline.NewPrefixCompleter()
	for name := range cmds {
		completer.Children = append(completer.Children, readline.PcItem(name))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "9p> ",
		HistoryFile:  historyFile(),
		AutoComplete: completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "9p: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	sh.interactive = term.IsTerminal(int(os.Stdin.Fd()))
	sh.confirm = func(prompt string) bool {
		rl.SetPrompt(prompt + " [y/N] ")
		defer rl.SetPrompt("9p> ")
		line, err := rl.Readline()
		if err != nil {
			return false
		}
		return line == "y" || line == "yes"
	}

	for !quit {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		fields, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "9p: %v\n", err)
			continue
		}
		if len(fields) == 0 {
			continue
		}
		run(fields[0], fields[1:])
	}
}
