package models

import (
	"fmt"
	"strconv"
)

type WorkerID int

const RootWorker WorkerID = 0

func (id WorkerID) String() string {
	return strconv.Itoa(int(id))
}

// WorkerIdentity is supplied by the launcher. TotalWorkers must be the same
// on every participant of a session.
type WorkerIdentity struct {
	ID           WorkerID
	TotalWorkers int
}

func (w WorkerIdentity) IsRoot() bool {
	return w.ID == RootWorker
}

func (w WorkerIdentity) Validate() error {
	if w.TotalWorkers < 1 {
		return fmt.Errorf("%w: total workers %d, expected at least 1", ErrInvalidIdentity, w.TotalWorkers)
	}
	if w.ID < 0 || int(w.ID) >= w.TotalWorkers {
		return fmt.Errorf("%w: worker id %d out of range [0, %d)", ErrInvalidIdentity, w.ID, w.TotalWorkers)
	}
	return nil
}

func (w WorkerIdentity) String() string {
	return fmt.Sprintf("%d/%d", w.ID, w.TotalWorkers)
}

type RendezvousRecord struct {
	Name     string
	Endpoint string
}
