package event

import (
	"budget-chat/domain/chat"
	"time"
)

type Type string

const (
	JoinedType     Type = "JOINED"
	LeftType       Type = "LEFT"
	TextPostedType Type = "TEXT_POSTED"
)

// Event is published on the bus and rendered by every other session.
// Implementations are immutable values.
type Event interface {
	Type() Type
	Author() chat.Name
	// Line is the notification sent to sessions other than the author.
	Line() string
}

type Joined struct {
	Name chat.Name
	At   time.Time
}

func (e Joined) Type() Type        { return JoinedType }
func (e Joined) Author() chat.Name { return e.Name }
func (e Joined) Line() string      { return chat.JoinedLine(e.Name) }

type Left struct {
	Name chat.Name
	At   time.Time
}

func (e Left) Type() Type        { return LeftType }
func (e Left) Author() chat.Name { return e.Name }
func (e Left) Line() string      { return chat.LeftLine(e.Name) }

type TextPosted struct {
	Name chat.Name
	Body string
	At   time.Time
}

func (e TextPosted) Type() Type        { return TextPostedType }
func (e TextPosted) Author() chat.Name { return e.Name }
func (e TextPosted) Line() string      { return chat.TextLine(e.Name, e.Body) }
