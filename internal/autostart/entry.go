package autostart

import (
	"fmt"
	"os"
	"strings"
)

// Entry is one login item: the executable and the arguments it starts with.
type Entry struct {
	Name       string
	Executable string
	Args       []string
}

// Current describes the running binary started with args.
func Current(name string, args ...string) (Entry, error) {
	exe, err := os.Executable()
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Executable: exe, Args: args}, nil
}

// Command is the command line stored in the login item.
func (e Entry) Command() string {
	command := fmt.Sprintf("\"%s\"", e.Executable)
	if len(e.Args) > 0 {
		command += " " + strings.Join(e.Args, " ")
	}
	return command
}
