// Command lunarisffi builds Lunaris's C-ABI boundary as a c-shared library:
// the three entry points a foreign plugin host needs to reach the process-
// wide mailbox (send_global_c, resolve_global_c) and the shared logger
// (log_c), mirroring the kernel's native extern "C" surface.
package main

/*
#include <stdint.h>
#include <stddef.h>

typedef void (*lunaris_free_fn)(const void*, size_t);

static inline void lunaris_call_free(lunaris_free_fn fn, const void* ptr, size_t len) {
	if (fn != NULL) {
		fn(ptr, len);
	}
}
*/
import "C"

import (
	"unsafe"

	"github.com/shuntia/lunaris/pkg/logger"
	"github.com/shuntia/lunaris/pkg/mailbox"
)

var ffiLog = logger.Get("FFI")

const invalidSlot = 0xFFFFFFFF

func main() {}

func init() {
	if err := mailbox.Init(); err != nil {
		ffiLog.Warnf("global mailbox already initialized: %v\n", err)
	}
}

// send_global_c routes a C-ABI envelope through the process-wide mailbox.
// Returns 0 on success, 1 on failure - the same two-value convention the
// kernel's native send_global_c uses.
//
//export send_global_c
func send_global_c(id C.uint64_t, source, destination C.uint32_t, requireAck C.uint8_t, opcode C.uint32_t,
	dataKind C.uint8_t, dataCode C.uint32_t, dataPtr unsafe.Pointer, dataLen C.size_t, dataFree C.lunaris_free_fn) C.uint32_t {

	payload, err := decodePayload(dataKind, dataCode, dataPtr, dataLen, dataFree)
	if err != nil {
		ffiLog.Warnf("send_global_c: %v\n", err)
		return 1
	}

	env := mailbox.Envelope{
		ID:          uint64(id),
		Source:      uint32(source),
		Destination: uint32(destination),
		RequireAck:  requireAck != 0,
		Message:     mailbox.Message{Opcode: uint32(opcode), Payload: payload},
	}

	if err := mailbox.SendGlobal(env); err != nil {
		ffiLog.Warnf("send_global_c: delivery failed: %v\n", err)
		return 1
	}
	return 0
}

// resolve_global_c resolves a NUL-terminated name against the process-wide
// mailbox, returning invalidSlot (0xFFFFFFFF) on any failure.
//
//export resolve_global_c
func resolve_global_c(query *C.char) C.uint32_t {
	if query == nil {
		return invalidSlot
	}

	slot, err := mailbox.ResolveGlobal(C.GoString(query))
	if err != nil {
		ffiLog.Warnf("resolve_global_c: %v\n", err)
		return invalidSlot
	}
	return C.uint32_t(slot)
}

// log_c forwards a foreign plugin's log line onto Lunaris's own logger.
// level follows the kernel's native convention: 1=error, 2=warn, 3=info,
// 4=debug, 5=trace; anything else is treated as a malformed level and
// logged at warn before falling back to info for the message itself.
//
//export log_c
func log_c(msg *C.char, source *C.char, level C.uint8_t) C.uint32_t {
	msgStr := "<<null message>>"
	if msg != nil {
		msgStr = C.GoString(msg)
	}
	srcStr := "UNKNOWN"
	if source != nil {
		srcStr = C.GoString(source)
	}

	log := logger.Get(srcStr)
	switch level {
	case 1:
		log.Errorf("%s\n", msgStr)
	case 2:
		log.Warnf("%s\n", msgStr)
	case 3:
		log.Infof("%s\n", msgStr)
	case 4:
		log.Debugf("%s\n", msgStr)
	case 5:
		log.Verbosef("%s\n", msgStr)
	default:
		ffiLog.Warnf("log_c: received malformed log level %d, defaulting to info\n", level)
		log.Infof("%s\n", msgStr)
	}
	return 0
}

// decodePayload converts a CEnvelope's raw data fields into a Payload.
// PayloadKindObject cannot cross this boundary and is rejected outright.
func decodePayload(kind C.uint8_t, code C.uint32_t, ptr unsafe.Pointer, length C.size_t, free C.lunaris_free_fn) (mailbox.Payload, error) {
	switch mailbox.PayloadKind(kind) {
	case mailbox.PayloadKindNone:
		return mailbox.PayloadNone(), nil
	case mailbox.PayloadKindCode:
		return mailbox.PayloadCode(uint32(code)), nil
	case mailbox.PayloadKindObject:
		return mailbox.Payload{}, &mailbox.Uninit{Resource: "object payloads cannot cross the C ABI"}
	case mailbox.PayloadKindBytes:
		return mailbox.PayloadBytes(C.GoBytes(ptr, C.int(length))), nil
	case mailbox.PayloadKindForeignPeek:
		return mailbox.PayloadForeignPeek(mailbox.ForeignPeek{Ptr: uintptr(ptr), Len: int(length)}), nil
	case mailbox.PayloadKindForeignOwned:
		owned := &mailbox.ForeignOwned{
			Ptr: uintptr(ptr),
			Len: int(length),
			Free: func(p uintptr, l int) {
				C.lunaris_call_free(free, unsafe.Pointer(p), C.size_t(l))
			},
		}
		return mailbox.PayloadForeignOwned(owned), nil
	default:
		return mailbox.Payload{}, &mailbox.Uninit{Resource: "unrecognized payload kind"}
	}
}
