// Package action enumerates the primitive gateway calls.
package action

import "fmt"

// Action is one of the closed set of primitive gateway calls.
type Action int

const (
	Authorize Action = iota + 1
	Capture
	Refund
	Cancel
)

// All lists every action in declaration order.
var All = []Action{Authorize, Capture, Refund, Cancel}

var names = map[Action]string{
	Authorize: "authorize",
	Capture:   "capture",
	Refund:    "refund",
	Cancel:    "cancel",
}

func (a Action) String() string {
	if name, ok := names[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Valid reports whether a is a member of the closed set.
func (a Action) Valid() bool {
	_, ok := names[a]
	return ok
}

// Parse maps a lower-case action name back to its Action.
func Parse(name string) (Action, error) {
	for a, n := range names {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}
