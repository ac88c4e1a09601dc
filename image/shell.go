package image

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/mattn/go-shellwords"
	"github.com/rstms/fatnav"
	log "github.com/sirupsen/logrus"
)

var errExit = errors.New("exit")

type command struct {
	usage string
	help  string
	args  int
	run   func(s *Shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"info":  {"info", "show boot sector fields", 0, (*Shell).info},
		"ls":    {"ls", "list the current directory", 0, (*Shell).ls},
		"cd":    {"cd NAME", "change to subdirectory NAME, .. for the parent", 1, (*Shell).cd},
		"mkdir": {"mkdir NAME", "create subdirectory NAME", 1, (*Shell).mkdir},
		"pwd":   {"pwd", "print the current directory", 0, (*Shell).pwd},
		"help":  {"help", "list commands", 0, (*Shell).help},
		"exit":  {"exit", "leave the shell", 0, (*Shell).exit},
	}
}

// Shell is the interactive command loop over an open image. It owns
// the current directory context.
type Shell struct {
	image *Image
	ctx   Context
	out   io.Writer
}

func NewShell(image *Image, out io.Writer) *Shell {
	return &Shell{image: image, ctx: image.RootContext(), out: out}
}

// Context returns the current directory.
func (s *Shell) Context() Context {
	return s.ctx
}

func (s *Shell) Prompt() string {
	return fmt.Sprintf("[%s%s]/> ", s.image.Name(), s.ctx)
}

// Run reads commands from in until exit or end of input.
func (s *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.Prompt())
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			break
		}
		err := s.Execute(scanner.Text())
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			return Fatal(err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Fatal(err)
	}
	return nil
}

// Execute runs one command line. Failures caused by the request are
// reported on the output; only image failures are returned.
func (s *Shell) Execute(line string) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		fmt.Fprintf(s.out, "%v\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintln(s.out, "Unknown command")
		return nil
	}
	if len(args)-1 != cmd.args {
		fmt.Fprintf(s.out, "usage: %s\n", cmd.usage)
		return nil
	}
	log.Debugf("shell: %v", args)
	err = cmd.run(s, args[1:])
	if fatnav.IsUserError(err) {
		fmt.Fprintln(s.out, fatnav.Message(err))
		return nil
	}
	return err
}

func (s *Shell) info(args []string) error {
	info, err := s.image.Info()
	if err != nil {
		return err
	}
	for _, field := range []struct {
		label string
		key   string
	}{
		{"Bytes Per Sector", "bytes_per_sector"},
		{"Sectors Per Cluster", "sectors_per_cluster"},
		{"Root Cluster", "root_cluster"},
		{"Total # of Clusters in Data Region", "total_clusters"},
		{"Free Clusters", "free_clusters"},
		{"Sectors Per FAT", "sectors_per_fat"},
		{"Size of Image (in bytes)", "image_size"},
		{"OEM Name", "oem_name"},
		{"Volume Label", "volume_label"},
	} {
		fmt.Fprintf(s.out, "%s: %v\n", field.label, info[field.key])
	}
	return nil
}

func (s *Shell) ls(args []string) error {
	for e, err := range s.image.FileSystem().Entries(s.ctx.Cluster) {
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, e.String())
	}
	return nil
}

func (s *Shell) cd(args []string) error {
	ctx, err := s.image.Chdir(s.ctx, args[0])
	switch {
	case errors.Is(err, fatnav.ErrNotFound):
		fmt.Fprintf(s.out, "Directory not found: %s\n", args[0])
	case errors.Is(err, fatnav.ErrNotADirectory):
		fmt.Fprintf(s.out, "Not a directory: %s\n", args[0])
	case err != nil:
		return err
	default:
		s.ctx = ctx
	}
	return nil
}

func (s *Shell) mkdir(args []string) error {
	_, err := s.image.MkdirAt(s.ctx, args[0])
	switch {
	case errors.Is(err, fatnav.ErrAlreadyExists):
		fmt.Fprintf(s.out, "Directory already exists: %s\n", args[0])
	case errors.Is(err, fatnav.ErrInvalidName):
		fmt.Fprintf(s.out, "Invalid directory name: %s\n", args[0])
	case errors.Is(err, fatnav.ErrNoSpace):
		fmt.Fprintln(s.out, "No space in current directory to create new directory")
	case errors.Is(err, fatnav.ErrVolumeFull):
		fmt.Fprintln(s.out, "Volume full")
	case err != nil:
		return err
	default:
		fmt.Fprintf(s.out, "Directory created: %s\n", args[0])
	}
	return nil
}

func (s *Shell) pwd(args []string) error {
	fmt.Fprintln(s.out, s.ctx)
	return nil
}

func (s *Shell) help(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-12s %s\n", commands[name].usage, commands[name].help)
	}
	return nil
}

func (s *Shell) exit(args []string) error {
	return errExit
}
