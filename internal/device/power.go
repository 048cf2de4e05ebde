package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPower halts the machine by running an external command,
// "sudo shutdown -h now" by default.
type CommandPower struct {
	argv []string
}

func NewCommandPower(argv []string) *CommandPower {
	return &CommandPower{argv: append([]string(nil), argv...)}
}

func (p *CommandPower) PowerOff(ctx context.Context) error {
	if len(p.argv) == 0 {
		return errors.New("no shutdown command configured")
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", strings.Join(p.argv, " "), err, msg)
		}
		return fmt.Errorf("%s: %w", strings.Join(p.argv, " "), err)
	}
	return nil
}
