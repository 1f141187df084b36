package saga

import "errors"

// ErrUnroutableReply is wrapped into the error returned by the reply
// router when a delivered reply task name matches no async step in the
// saga type being dispatched to. Per the core spec this is fatal to that
// reply: it must be logged and must never silently succeed.
var ErrUnroutableReply = errors.New("saga: unroutable reply")
