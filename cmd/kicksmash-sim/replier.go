// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

package main

import (
	"fmt"

	"github.com/cdhooper/kicksmash32fw/reply"
)

// sentReply is one call a handler made to Send.
type sentReply struct {
	flags  reply.Flag
	status uint16
	data   []byte
}

// recordingReplier satisfies cmdtable.Replier without touching any bus:
// it records every reply a handler sends (some opcodes, like the flash
// commands, reply more than once) so the CLI command that triggered
// dispatch can print the whole exchange. This is the host-side stand-in
// for reply.Engine used by every simulated command.
type recordingReplier struct {
	sent []sentReply
}

func (r *recordingReplier) Send(flags reply.Flag, status uint16, rbuf1, rbuf2 []byte) error {
	r.sent = append(r.sent, sentReply{
		flags:  flags,
		status: status,
		data:   append(append([]byte{}, rbuf1...), rbuf2...),
	})
	return nil
}

func (r *recordingReplier) print() {
	for i, s := range r.sent {
		fmt.Printf("reply[%d]: status=%d flags=%#x", i, s.status, s.flags)
		if len(s.data) > 0 {
			fmt.Printf(" data=%x", s.data)
		}
		fmt.Println()
	}
}
