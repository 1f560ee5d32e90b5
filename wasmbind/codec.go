package wasmbind

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/opcore/driver"
)

// Status is the op_call return value and the op_resolve status argument.
type Status uint32

const (
	StatusPending Status = iota
	StatusOK
	StatusFailed
	StatusUnknownOp
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusUnknownOp:
		return "unknown_op"
	default:
		return "invalid"
	}
}

// ArgDecoder turns the raw op_call argument into the op's args.
type ArgDecoder func(arg uint64) any

// ResultEncoder turns a mapped result into the raw op_resolve value.
type ResultEncoder func(r driver.Result) uint64

func rawArg(arg uint64) any { return arg }

// EncodeScalar encodes integer, boolean and float values. Anything else,
// failures included, encodes as 0.
func EncodeScalar(r driver.Result) uint64 {
	if !r.OK() {
		return 0
	}
	switch v := r.Value.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint32:
		return uint64(v)
	case int32:
		return uint64(int64(v))
	case int:
		return uint64(v)
	case uint:
		return uint64(v)
	case uint16:
		return uint64(v)
	case int16:
		return uint64(int64(v))
	case uint8:
		return uint64(v)
	case int8:
		return uint64(int64(v))
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return api.EncodeF64(v)
	case float32:
		return api.EncodeF32(v)
	default:
		return 0
	}
}

func statusOf(r driver.Result) Status {
	if r.OK() {
		return StatusOK
	}
	return StatusFailed
}
