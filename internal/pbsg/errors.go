package pbsg

import "errors"

// Common switch-group errors. Handlers match these with errors.Is to pick
// response codes; everything else is treated as an internal fault.
var (
	// ErrInstanceNotFound indicates the named group does not exist.
	ErrInstanceNotFound = errors.New("pbsg: instance not found")

	// ErrInstanceExists indicates a create collided with an existing group.
	ErrInstanceExists = errors.New("pbsg: instance already exists")

	// ErrInstanceClosed indicates the group has been shut down and no
	// longer accepts commands.
	ErrInstanceClosed = errors.New("pbsg: instance closed")

	// ErrInvalidName indicates a group name failed validation.
	ErrInvalidName = errors.New("pbsg: invalid instance name")

	// ErrEmptyButton indicates a command named no button at all.
	ErrEmptyButton = errors.New("pbsg: button name is empty")

	// ErrUnknownButton indicates a button name that is not part of the
	// group's configured set.
	ErrUnknownButton = errors.New("pbsg: unknown button")

	// ErrInvalidSettings indicates a configuration change failed
	// validation. The wrapped message lists every problem found.
	ErrInvalidSettings = errors.New("pbsg: invalid settings")
)
