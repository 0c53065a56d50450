package chat

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const (
	Welcome       = "Welcome to budgetchat! What shall I call you?"
	roomPrefix    = "* The room contains: "
	aloneSentinel = "just you!"
)

// PresenceLine lists every name in others except self.
// The order follows others, which callers may leave unsorted.
func PresenceLine(self Name, others []Name) string {
	names := lo.FilterMap(others, func(n Name, _ int) (string, bool) {
		return string(n), n != self
	})
	if len(names) == 0 {
		return roomPrefix + aloneSentinel
	}
	return roomPrefix + strings.Join(names, ", ")
}

func JoinedLine(name Name) string {
	return fmt.Sprintf("* %s has entered the room", name)
}

func LeftLine(name Name) string {
	return fmt.Sprintf("* %s has left the room", name)
}

func TextLine(name Name, body string) string {
	return fmt.Sprintf("[%s] %s", name, body)
}
