package loader

import "github.com/pkg/errors"

// Options describes one load run. Exactly one source is used:
// a directory of message files, an mbox, or stdin carrying a single
// message.
type Options struct {
	ListName    string
	Directory   string
	MboxPath    string
	Interactive bool
	Verbose     bool
	// ForceDate replaces the Date header of loaded messages. Only
	// meaningful when loading a single message.
	ForceDate string
	// MsgIDFilter restricts a directory or mbox run to the one
	// message with this id.
	MsgIDFilter string
}

func (o Options) Validate() error {
	if o.ListName == "" {
		return errors.New("list must be specified")
	}
	if o.Directory != "" && o.MboxPath != "" {
		return errors.New("directory and mbox cannot be specified together")
	}
	if o.MsgIDFilter != "" && o.Directory == "" && o.MboxPath == "" {
		return errors.New("msgid filter requires a directory or mbox source")
	}
	if o.ForceDate != "" && (o.Directory != "" || o.MboxPath != "") && o.MsgIDFilter == "" {
		return errors.New("forced date can only be used with a single message")
	}
	if o.Interactive && o.Directory == "" {
		return errors.New("interactive mode requires a directory source")
	}
	return nil
}
