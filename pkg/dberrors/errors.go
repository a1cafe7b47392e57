package dberrors

import "errors"

var (
	ErrTransport           = errors.New("partcache: transport failure")
	ErrEncoding            = errors.New("partcache: encoding failure")
	ErrProtocol            = errors.New("partcache: protocol error")
	ErrUnknownDataset      = errors.New("partcache: unknown dataset")
	ErrPartitionOutOfRange = errors.New("partcache: partition out of range")
	ErrStopped             = errors.New("partcache: coordinator stopped")
	ErrClosed              = errors.New("partcache: closed")
	ErrInvalidArgument     = errors.New("partcache: invalid argument")
)
