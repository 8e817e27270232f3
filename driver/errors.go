// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver implements the operation executor: the retry / server
// selection / checkout / send / decode / resume loop every command runs
// through, plus the error taxonomy and batch cursor it shares with callers.
package driver

import (
	"fmt"

	"github.com/nodaldb/nodal-go-driver/address"
)

// ErrorKind classifies every error the executor can surface, per §7.
type ErrorKind int

// The full error taxonomy.
const (
	KindInvalidArgument ErrorKind = iota
	KindAuthentication
	KindIncompatibleServer
	KindDnsResolve
	KindIo
	KindServerSelection
	KindTimeout
	KindCommand
	KindWriteError
	KindWriteConcernError
	KindBulkWrite
	KindInvalidResponse
	KindGridFs
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindAuthentication:
		return "Authentication"
	case KindIncompatibleServer:
		return "IncompatibleServer"
	case KindDnsResolve:
		return "DnsResolve"
	case KindIo:
		return "Io"
	case KindServerSelection:
		return "ServerSelection"
	case KindTimeout:
		return "Timeout"
	case KindCommand:
		return "Command"
	case KindWriteError:
		return "WriteError"
	case KindWriteConcernError:
		return "WriteConcernError"
	case KindBulkWrite:
		return "BulkWrite"
	case KindInvalidResponse:
		return "InvalidResponse"
	case KindGridFs:
		return "GridFs"
	default:
		return "Internal"
	}
}

// Driver-synthesized and server-lifted retry labels. Retry logic keys
// exclusively on labels, never on codes directly (§7).
const (
	LabelRetryableWriteError            = "RetryableWriteError"
	LabelTransientTransactionError      = "TransientTransactionError"
	LabelUnknownTransactionCommitResult = "UnknownTransactionCommitResult"
	LabelNoWritesPerformed              = "NoWritesPerformed"
	LabelPoolCleared                    = "PoolCleared"
)

// Error is the uniform error value every surfaced failure is wrapped in.
// Per §7's user-visible behavior: kind, an optional address, an optional
// label set, an optional wire-protocol code, and a human-readable message.
type Error struct {
	Kind    ErrorKind
	Address address.Address
	Labels  []string
	Code    int32
	Name    string
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// HasLabel reports whether label is present among the error's labels.
func (e *Error) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// NodeIsRecovering reports whether the server command error's code
// indicates the node is mid-election and cannot currently serve writes.
func (e *Error) NodeIsRecovering() bool {
	switch e.Code {
	case 11600, 11602, 13436, 189, 91:
		return true
	}
	return false
}

// NotPrimary reports whether the command error indicates the targeted node
// is no longer primary.
func (e *Error) NotPrimary() bool {
	switch e.Code {
	case 10107, 13435:
		return true
	}
	return false
}

// NodeIsShuttingDown reports whether the error code (11600 or 91) indicates
// the server process is shutting down. It only classifies the code; the
// executor does not clear a pool because of it.
func (e *Error) NodeIsShuttingDown() bool {
	switch e.Code {
	case 11600, 91:
		return true
	}
	return false
}

// newError constructs an *Error, the uniform wrapper every executor exit
// path uses.
func newError(kind ErrorKind, addr address.Address, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Address: addr, Message: msg, Wrapped: wrapped}
}

// WriteError describes one failed write within a write-command's response.
type WriteError struct {
	Index   int32
	Code    int32
	Message string
}

func (w WriteError) Error() string {
	return fmt.Sprintf("write error at index %d: %s (code %d)", w.Index, w.Message, w.Code)
}

// WriteConcernError describes a writeConcernError subdocument.
type WriteConcernError struct {
	Code            int32
	Message         string
	Labels          []string
	TopologyVersion interface{}
}

func (w WriteConcernError) Error() string {
	return fmt.Sprintf("write concern error: %s (code %d)", w.Message, w.Code)
}

// HasLabel reports whether label is present among the write concern
// error's labels.
func (w WriteConcernError) HasLabel(label string) bool {
	for _, l := range w.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// BulkWriteError aggregates every per-document WriteError plus an optional
// top-level WriteConcernError from a single bulk write command.
type BulkWriteError struct {
	WriteErrors       []WriteError
	WriteConcernError *WriteConcernError
}

func (b *BulkWriteError) Error() string {
	return fmt.Sprintf("bulk write error: %d write errors", len(b.WriteErrors))
}
