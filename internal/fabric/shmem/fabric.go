package shmem

import "depthfeed/internal/model"

// ControlMessage carries whatever the 2048-byte slice region cannot: the
// one-time handle handshake, status changes, and metrics. Delivered over
// a regular Go channel since this implementation's writer and readers
// share a process; a cross-process deployment would replace this with a
// control socket while keeping Region unchanged.
type ControlMessage struct {
	Ready   bool
	Status  model.ConnectionStatus
	ErrMsg  string
	Metrics model.Metrics
}

// Fabric implements producer.Fabric for the shared-memory variant: slices
// go through the region, everything else through Control.
type Fabric struct {
	region  *Region
	control chan ControlMessage
}

// NewFabric allocates a fresh region and announces it once over Control.
func NewFabric(controlBuf int) (*Fabric, *Region) {
	region := NewRegion()
	f := &Fabric{region: region, control: make(chan ControlMessage, controlBuf)}
	f.control <- ControlMessage{Ready: true}
	return f, region
}

// Control exposes the control channel for a reader to consume.
func (f *Fabric) Control() <-chan ControlMessage { return f.control }

func (f *Fabric) Publish(s model.OrderbookSlice) {
	f.region.Write(s)
}

func (f *Fabric) PublishStatus(status model.ConnectionStatus, errMsg string) {
	select {
	case f.control <- ControlMessage{Status: status, ErrMsg: errMsg}:
	default:
	}
}

func (f *Fabric) PublishMetrics(m model.Metrics) {
	select {
	case f.control <- ControlMessage{Metrics: m}:
	default:
	}
}
