// Package errs implements the error status plane described by the
// decoder and VM design: every fallible operation classifies its
// failure into one of a small set of codes and funnels it through a
// Plane so that a caller can either inspect the returned error or
// install a handler and let the Plane invoke it.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an error into the BGP/MRT/VM families from spec.md §7.
type Code int

const (
	NOERR Code = iota

	// BGP-message errors
	ErrBadMarker
	ErrTruncated
	ErrOversized
	ErrBadType
	ErrBadAttrType
	ErrTruncAttr
	ErrTruncPfx
	ErrDupNlriAttr
	ErrBadAggregator
	ErrBadPfxWidth
	ErrUnsupportedAfiSafi
	ErrRibNoMpreach

	// MRT errors
	ErrBadSubtype
	ErrTruncRecord
	ErrIncoherentCount
	ErrTruncPeerEntry
	ErrTruncRibEntry
	ErrIllegalRibv2Mpreach
	ErrPeerIndexRange

	// VM errors
	ErrBadVmState
	ErrEmptyProgram
	ErrBadMatchExpr
	ErrNfaTooComplex
	ErrGroupLimit
	ErrBadJump
	ErrIllegalInstr
	ErrHeapExhausted
	ErrBadEndBlk
	ErrStackOverflow
	ErrStackUnderflow
	ErrBadK
	ErrBadFn
	ErrBadOperand
	ErrMsgAccess

	// VMMSGERR is special: Set() with a non-NOERR code never
	// overwrites a code already latched as VMMSGERR, see Plane.Set.
	VMMSGERR
)

var names = map[Code]string{
	NOERR:                  "NOERR",
	ErrBadMarker:           "BADMARKER",
	ErrTruncated:           "TRUNCATED",
	ErrOversized:           "OVRSIZ",
	ErrBadType:             "BADTYPE",
	ErrBadAttrType:         "BADATTRTYPE",
	ErrTruncAttr:           "TRUNCATTR",
	ErrTruncPfx:            "TRUNC_PFX",
	ErrDupNlriAttr:         "DUP_NLRI_ATTR",
	ErrBadAggregator:       "BADAGGREGATOR",
	ErrBadPfxWidth:         "BAD_PFX_WIDTH",
	ErrUnsupportedAfiSafi:  "UNSUPPORTED_AFISAFI",
	ErrRibNoMpreach:        "RIB_NO_MPREACH",
	ErrBadSubtype:          "BADSUBTYPE",
	ErrTruncRecord:         "TRUNCRECORD",
	ErrIncoherentCount:     "INCOHERENTCOUNT",
	ErrTruncPeerEntry:      "TRUNCPEERENTRY",
	ErrTruncRibEntry:       "TRUNCRIBENTRY",
	ErrIllegalRibv2Mpreach: "ILLEGALRIBV2MPREACH",
	ErrPeerIndexRange:      "PEERINDEXRANGE",
	ErrBadVmState:          "BADVMSTATE",
	ErrEmptyProgram:        "EMPTYPROGRAM",
	ErrBadMatchExpr:        "BADMATCHEXPR",
	ErrNfaTooComplex:       "NFATOOCOMPLEX",
	ErrGroupLimit:          "GROUPLIMIT",
	ErrBadJump:             "BADJMP",
	ErrIllegalInstr:        "BGPEVMILL",
	ErrHeapExhausted:       "HEAPEXHAUSTED",
	ErrBadEndBlk:           "BADENDBLK",
	ErrStackOverflow:       "STACKOVERFLOW",
	ErrStackUnderflow:      "STACKUNDERFLOW",
	ErrBadK:                "BADK",
	ErrBadFn:               "BADFN",
	ErrBadOperand:          "BADOPERAND",
	ErrMsgAccess:           "MSGACCESS",
	VMMSGERR:               "VMMSGERR",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Loc is the source-location struct passed to a handler, mirroring the
// "source-location struct" of spec.md §4.K.
type Loc struct {
	File string
	Line int
	Op   string
}

// Handler is invoked by Plane.Set when a non-NOERR code is latched,
// unless the Plane was configured to abort instead (see Plane.SetFatal).
type Handler func(code Code, loc Loc, err error, obj interface{})

// Plane is the per-session (not process-wide; spec.md §9 recommends an
// explicit result type plus an optional callback rather than a thread
// local) error status plane. Zero value is ready to use.
type Plane struct {
	code    Code
	err     error
	handler Handler
	obj     interface{}
	fatal   bool
}

// SetHandler installs the callback invoked on every non-NOERR Set.
func (p *Plane) SetHandler(h Handler, obj interface{}) {
	p.handler = h
	p.obj = obj
}

// SetFatal makes Set panic (with the error) instead of invoking the
// handler — the "terminate the process with a backtrace" special
// handler value from spec.md §4.K.
func (p *Plane) SetFatal(fatal bool) { p.fatal = fatal }

// Set overwrites the latched code/err except when the currently latched
// code is VMMSGERR and code is not NOERR: the VMMSGERR is then preserved
// so a VM-level error already recorded during this call chain is not
// clobbered by an unrelated decoder error surfacing afterward, while a
// NOERR Set clears it. Returns err unchanged for
// convenient `return p.Set(...)` call-site chaining.
func (p *Plane) Set(code Code, loc Loc, err error) error {
	if p.code == VMMSGERR && code != NOERR {
		// preserve the latched VM-level error
	} else {
		p.code = code
		p.err = err
	}
	if code == NOERR {
		return nil
	}
	if p.fatal {
		panic(errors.Wrapf(err, "%s at %s:%d (%s)", code, loc.File, loc.Line, loc.Op))
	}
	if p.handler != nil {
		p.handler(code, loc, err, p.obj)
	}
	return err
}

// Code returns the last latched code.
func (p *Plane) Code() Code { return p.code }

// Err returns the last latched error (nil if the last Set was NOERR).
func (p *Plane) Err() error { return p.err }

// Wrap is a convenience for building a contextual error at a call site.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Errorf is a convenience re-export so callers needn't import pkg/errors
// directly just to format a new leaf error.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
