// Package protocol defines the request/reply messages exchanged between the
// per-node trackers and the coordinator.
package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"partcache/pkg/dberrors"
	"partcache/pkg/types"
)

// Kind selects the message variant carried by a Request.
type Kind string

const (
	KindRegisterDataset  Kind = "register_dataset"
	KindAddedToCache     Kind = "added_to_cache"
	KindDroppedFromCache Kind = "dropped_from_cache"
	KindHostLost         Kind = "host_lost"
	KindGetLocations     Kind = "get_locations"
	KindStop             Kind = "stop"
)

// Known reports whether k is a message kind the coordinator understands.
func (k Kind) Known() bool {
	switch k {
	case KindRegisterDataset, KindAddedToCache, KindDroppedFromCache,
		KindHostLost, KindGetLocations, KindStop:
		return true
	}
	return false
}

// Request is the envelope for every coordinator call. Only the fields used
// by Kind are meaningful.
type Request struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	Dataset    types.DatasetID `json:"dataset,omitempty"`
	Partitions int             `json:"partitions,omitempty"`
	Partition  int             `json:"partition,omitempty"`
	Host       types.HostID    `json:"host,omitempty"`
}

func newRequest(kind Kind) Request {
	return Request{ID: uuid.New(), Kind: kind}
}

func RegisterDataset(id types.DatasetID, numPartitions int) Request {
	r := newRequest(KindRegisterDataset)
	r.Dataset, r.Partitions = id, numPartitions
	return r
}

func AddedToCache(id types.DatasetID, partition int, host types.HostID) Request {
	r := newRequest(KindAddedToCache)
	r.Dataset, r.Partition, r.Host = id, partition, host
	return r
}

func DroppedFromCache(id types.DatasetID, partition int, host types.HostID) Request {
	r := newRequest(KindDroppedFromCache)
	r.Dataset, r.Partition, r.Host = id, partition, host
	return r
}

func HostLost(host types.HostID) Request {
	r := newRequest(KindHostLost)
	r.Host = host
	return r
}

func GetLocations() Request {
	return newRequest(KindGetLocations)
}

func Stop() Request {
	return newRequest(KindStop)
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Code classifies an error reply so the client can map it back to a sentinel.
type Code string

const (
	CodeProtocol        Code = "protocol"
	CodeUnknownDataset  Code = "unknown_dataset"
	CodePartitionRange  Code = "partition_out_of_range"
	CodeInvalidArgument Code = "invalid_argument"
	CodeStopped         Code = "stopped"
	CodeInternal        Code = "internal"
)

// Reply answers exactly one Request.
type Reply struct {
	ID        uuid.UUID `json:"id"`
	Status    Status    `json:"status"`
	Code      Code      `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Locations Snapshot  `json:"locations,omitempty"`
}

func OK(id uuid.UUID) Reply {
	return Reply{ID: id, Status: StatusOK}
}

// Fail builds an error reply, classifying err by the sentinel it wraps.
func Fail(id uuid.UUID, err error) Reply {
	return Reply{ID: id, Status: StatusError, Code: CodeOf(err), Error: err.Error()}
}

var codeSentinels = []struct {
	code Code
	err  error
}{
	{CodeProtocol, dberrors.ErrProtocol},
	{CodeUnknownDataset, dberrors.ErrUnknownDataset},
	{CodePartitionRange, dberrors.ErrPartitionOutOfRange},
	{CodeInvalidArgument, dberrors.ErrInvalidArgument},
	{CodeStopped, dberrors.ErrStopped},
}

func CodeOf(err error) Code {
	for _, cs := range codeSentinels {
		if errors.Is(err, cs.err) {
			return cs.code
		}
	}
	return CodeInternal
}

// Err converts an error reply back into an error wrapping the matching
// sentinel. It returns nil for successful replies.
func (r Reply) Err() error {
	if r.Status != StatusError {
		return nil
	}
	for _, cs := range codeSentinels {
		if cs.code == r.Code {
			return fmt.Errorf("%w: %s", cs.err, r.Error)
		}
	}
	return fmt.Errorf("coordinator: %s", r.Error)
}
