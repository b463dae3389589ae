package ledger

import (
	"encoding/json"
	"fmt"
)

// Command is the intent a transaction carries. The zero value is not a
// valid command.
type Command int

const (
	// CommandIssue creates records without consuming any.
	CommandIssue Command = iota + 1
	// CommandMove consumes records and produces new ones with conserved
	// per-issuer totals.
	CommandMove
	// CommandRedeem consumes records and produces none.
	CommandRedeem
)

var commandNames = map[Command]string{
	CommandIssue:  "issue",
	CommandMove:   "move",
	CommandRedeem: "redeem",
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Known reports whether c is one of the recognized commands.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// ParseCommand is the inverse of Command.String for known commands.
func ParseCommand(s string) (Command, error) {
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// MarshalJSON encodes known commands by name and unknown ones by number so
// that a foreign command survives a round trip and is rejected at
// verification rather than at decode time.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Known() {
		return json.Marshal(c.String())
	}
	return json.Marshal(int(c))
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Command) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseCommand(name)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("command must be a name or number: %w", err)
	}
	*c = Command(n)
	return nil
}
