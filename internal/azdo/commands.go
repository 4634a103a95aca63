package azdo

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrMultilineSecret is returned when a secret value spans several lines and
// the agent has not opted into multi-line secrets.
var ErrMultilineSecret = errors.New("secrets containing line breaks are not supported")

var (
	propertyEscaper = strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A", "]", "%5D", ";", "%3B")
	dataEscaper     = strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A")
)

// Commands writes logging commands to the agent. It is safe for concurrent
// use; each command is written in one call.
type Commands struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger

	// AllowMultilineSecrets mirrors SYSTEM_UNSAFEALLOWMULTILINESECRET.
	AllowMultilineSecrets bool
}

func NewCommands(out io.Writer, baseLogger *zap.Logger) *Commands {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	return &Commands{out: out, logger: baseLogger.Named("azdo")}
}

// Publish issues task.setvariable. secret=true makes the agent mask the
// value in all later output.
func (c *Commands) Publish(name, value string, secret bool) error {
	if secret && !c.AllowMultilineSecrets && strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("variable '%s': %w", name, ErrMultilineSecret)
	}
	return c.issue("task.setvariable", map[string]string{
		"variable": name,
		"isoutput": "false",
		"issecret": fmt.Sprintf("%t", secret),
	}, value)
}

// ReportFailure issues task.complete with result=Failed. The agent marks the
// step failed but the process keeps running. A write failure is logged
// since the agent never saw the result.
func (c *Commands) ReportFailure(message string) {
	if err := c.issue("task.complete", map[string]string{"result": "Failed"}, message); err != nil {
		c.logger.Error("Failed to report task failure to the agent",
			zap.String("message", message),
			zap.Error(err),
		)
	}
}

// Complete marks the step succeeded.
func (c *Commands) Complete(message string) error {
	return c.issue("task.complete", map[string]string{"result": "Succeeded"}, message)
}

// FormatCommand renders ##vso[command k=v;...]data with agent escaping.
// Properties are written in key order.
func FormatCommand(command string, properties map[string]string, data string) string {
	var b strings.Builder
	b.WriteString("##vso[")
	b.WriteString(command)
	if len(properties) > 0 {
		keys := make([]string, 0, len(properties))
		for k := range properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" ")
		for _, k := range keys {
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(propertyEscaper.Replace(properties[k]))
			b.WriteString(";")
		}
	}
	b.WriteString("]")
	b.WriteString(dataEscaper.Replace(data))
	return b.String()
}

func (c *Commands) issue(command string, properties map[string]string, data string) error {
	line := FormatCommand(command, properties, data) + "\n"
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, line); err != nil {
		return fmt.Errorf("writing %s command: %w", command, err)
	}
	return nil
}
