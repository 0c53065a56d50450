package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceLine(t *testing.T) {
	tests := []struct {
		name     string
		self     Name
		others   []Name
		expected string
	}{
		{
			name:     "Nobody else",
			self:     "alice",
			others:   nil,
			expected: "* The room contains: just you!",
		},
		{
			name:     "Only self in snapshot",
			self:     "alice",
			others:   []Name{"alice"},
			expected: "* The room contains: just you!",
		},
		{
			name:     "One other",
			self:     "bob",
			others:   []Name{"alice", "bob"},
			expected: "* The room contains: alice",
		},
		{
			name:     "Several others keep snapshot order",
			self:     "dave",
			others:   []Name{"carol", "dave", "alice", "bob"},
			expected: "* The room contains: carol, alice, bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, PresenceLine(tt.self, tt.others))
		})
	}
}

func TestNotices(t *testing.T) {
	req := require.New(t)
	req.Equal("Welcome to budgetchat! What shall I call you?", Welcome)
	req.Equal("* bob has entered the room", JoinedLine("bob"))
	req.Equal("* bob has left the room", LeftLine("bob"))
	req.Equal("[bob] hello", TextLine("bob", "hello"))
	req.Equal("[bob] ", TextLine("bob", ""))
}
