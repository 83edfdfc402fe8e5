package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// execTimeout bounds every subprocess launched by the execution tools.
const execTimeout = 10 * time.Second

// ExecDescriptors returns the code execution tools. Both run their payload in
// a fresh subprocess with no state persisting between calls.
func ExecDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        "exec_shell",
			Description: "Execute a shell command with 10-second timeout. Use with caution - has full shell access.",
			Params: []ParamSpec{
				{Name: "command", Type: TypeString, Description: "Shell command to execute", Required: true},
			},
			Handler: handleExecShell,
		},
		{
			Name:        "exec_python",
			Description: "Execute Python code in an isolated subprocess with 10-second timeout.",
			Params: []ParamSpec{
				{Name: "code", Type: TypeString, Description: "Python code to execute (runs in fresh subprocess, no state persistence)", Required: true},
			},
			Handler: handleExecPython,
		},
	}
}

func handleExecShell(ctx context.Context, args Args) (string, error) {
	command := args.String("command")
	return runSubprocess(ctx,
		[]string{"sh", "-c", command},
		"Error: Command execution timed out (10s limit)",
		"✓ Command executed (no output)",
		"Error executing shell command",
	)
}

func handleExecPython(ctx context.Context, args Args) (string, error) {
	code := args.String("code")
	return runSubprocess(ctx,
		[]string{"python", "-c", code},
		"Error: Code execution timed out (10s limit)",
		"✓ Code executed (no output)",
		"Error executing Python code",
	)
}

// runSubprocess runs argv with the standard timeout and combines stdout and
// stderr into the tool result the way interactive users expect to read it.
func runSubprocess(ctx context.Context, argv []string, timeoutMsg, emptyMsg, errPrefix string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutMsg, nil
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += fmt.Sprintf("\nErrors:\n%s", stderr.String())
	}

	// A non-zero exit with captured output is still a useful result; only
	// failures to launch at all are reported as errors.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Sprintf("%s: %v", errPrefix, err), nil
	}

	if output == "" {
		return emptyMsg, nil
	}
	return output, nil
}
