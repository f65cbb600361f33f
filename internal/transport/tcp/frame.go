package tcp

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Sh00ty/rendezvous/internal/models"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tcp: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("tcp: CBOR decoder initialization failed: " + err.Error())
	}
}

type frameKind uint8

const (
	frameUnknown frameKind = iota
	// joiner -> root, From is the joiner
	frameHello
	// root -> joiner, From is the root
	frameWelcome
	// root -> joiner, the connection is refused with Reason
	frameReject
	// root -> current members, Peer is the worker being accepted
	frameAccepted
	// root -> members and joiner, Members is the merged group by rank
	frameView
	frameAck
	frameCommit
)

func (k frameKind) String() string {
	switch k {
	case frameHello:
		return "hello"
	case frameWelcome:
		return "welcome"
	case frameReject:
		return "reject"
	case frameAccepted:
		return "accepted"
	case frameView:
		return "view"
	case frameAck:
		return "ack"
	case frameCommit:
		return "commit"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

type frame struct {
	Kind    frameKind         `cbor:"1,keyasint"`
	From    models.WorkerID   `cbor:"2,keyasint,omitempty"`
	Peer    models.WorkerID   `cbor:"3,keyasint,omitempty"`
	Members []models.WorkerID `cbor:"4,keyasint,omitempty"`
	Reason  string            `cbor:"5,keyasint,omitempty"`
}
