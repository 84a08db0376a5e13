package ports

import "context"

// Command is a shell command executed in a working directory.
type Command struct {
	// Key identifies the owner of the process (usually a platform id) so it can be
	// terminated on shutdown.
	Key     string
	Dir     string
	Command string
	Env     []string
}

// CommandResult is the captured outcome of a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with code 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// CommandRunner runs platform commands as child processes.
// A non-zero exit code is not an error: err is reserved for failures to start
// or wait for the process.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}
