package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"stdin load", Options{ListName: "demo"}, false},
		{"directory load", Options{ListName: "demo", Directory: "/tmp/msgs"}, false},
		{"mbox load", Options{ListName: "demo", MboxPath: "/tmp/demo.mbox"}, false},
		{"missing list", Options{Directory: "/tmp/msgs"}, true},
		{"directory and mbox", Options{ListName: "demo", Directory: "/tmp/msgs", MboxPath: "/tmp/demo.mbox"}, true},
		{"msgid without source", Options{ListName: "demo", MsgIDFilter: "x@example.com"}, true},
		{"msgid with mbox", Options{ListName: "demo", MboxPath: "/tmp/demo.mbox", MsgIDFilter: "x@example.com"}, false},
		{"force date on stdin", Options{ListName: "demo", ForceDate: "Tue, 4 Jun 2019 10:15:00 +0200"}, false},
		{"force date on whole mbox", Options{ListName: "demo", MboxPath: "/tmp/demo.mbox", ForceDate: "Tue, 4 Jun 2019 10:15:00 +0200"}, true},
		{"force date on filtered mbox", Options{ListName: "demo", MboxPath: "/tmp/demo.mbox", MsgIDFilter: "x@example.com", ForceDate: "Tue, 4 Jun 2019 10:15:00 +0200"}, false},
		{"interactive without directory", Options{ListName: "demo", Interactive: true}, true},
		{"interactive directory", Options{ListName: "demo", Directory: "/tmp/msgs", Interactive: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
