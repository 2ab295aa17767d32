// Package main builds the c-shared host boundary (-buildmode=c-shared).
//
// Hosts talk to the service through four calls: init_context loads a model
// with its wake words and returns an opaque handle, send_message exchanges
// encoded envelopes, transcribe_speech runs one wake-word-gated listening
// session over the microphone, and free_buffer releases every buffer the
// library hands out. register_notify_port subscribes a C callback to
// completed transcripts.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef void (*notify_cb)(const char* transcript);

static void invoke_notify(notify_cb cb, const char* transcript) {
	cb(transcript);
}
*/
import "C"

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/aryan-regmi/virgil/internal/boundary"
	"github.com/aryan-regmi/virgil/internal/metrics"
	"github.com/aryan-regmi/virgil/internal/notify"
	"github.com/aryan-regmi/virgil/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

// instance bundles the per-handle state so hosts can run several independent
// contexts in one process.
type instance struct {
	service  *boundary.Service
	notifier *notify.Notifier
}

// instances maps opaque handles to live contexts. The table itself is the
// only process-wide state; everything a host manipulates hangs off its own
// handle.
var (
	mu        sync.Mutex
	nextID    uint64
	instances = make(map[uint64]*instance)
)

func getInstance(handle uint64) *instance {
	mu.Lock()
	defer mu.Unlock()
	return instances[handle]
}

// init_context loads the model at model_path, remembers the wake words
// (encoded as a count-prefixed string sequence), and returns a nonzero
// handle, or 0 on failure.
//
//export init_context
func init_context(modelPath *C.char, wakeWords *C.uint8_t, wakeWordsLen C.uint32_t) C.uint64_t {
	if modelPath == nil {
		return 0
	}

	var words []string
	if wakeWords != nil && wakeWordsLen > 0 {
		encoded := C.GoBytes(unsafe.Pointer(wakeWords), C.int(wakeWordsLen))
		decoded, _, err := protocol.DecodeStringSlice(encoded)
		if err != nil {
			return 0
		}
		words = decoded
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	notifier := notify.NewNotifier(logger)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	service := boundary.NewService(logger, m, notifier, nil)

	// Drive the load through the same path hosts use for reloads.
	msg := protocol.EncodeEnvelope(protocol.MessageTypeLoadModel,
		protocol.EncodeContext(&protocol.Context{ModelPath: C.GoString(modelPath), WakeWords: words}))
	resp := service.HandleMessage(msg)
	if len(resp) > 0 && resp[0] == protocol.ResponseTypeError {
		notifier.Close()
		return 0
	}

	mu.Lock()
	defer mu.Unlock()

	nextID++
	instances[nextID] = &instance{service: service, notifier: notifier}

	return C.uint64_t(nextID)
}

// destroy_context releases a handle and everything behind it. Unknown
// handles are ignored.
//
//export destroy_context
func destroy_context(handle C.uint64_t) {
	mu.Lock()
	inst := instances[uint64(handle)]
	delete(instances, uint64(handle))
	mu.Unlock()

	if inst == nil {
		return
	}

	inst.notifier.Close()
	inst.service.Close()
}

// handOut copies buf into C memory, registers the allocation for exactly-once
// release, and returns the pointer.
func handOut(inst *instance, buf []byte, outLen *C.uint32_t) *C.uint8_t {
	if outLen == nil {
		return nil
	}

	ptr := C.CBytes(buf)
	if err := inst.service.TrackBuffer(uint64(uintptr(ptr)), buf); err != nil {
		C.free(ptr)
		*outLen = 0
		return nil
	}

	*outLen = C.uint32_t(len(buf))
	return (*C.uint8_t)(ptr)
}

// send_message handles one encoded envelope and returns the encoded response
// in a buffer the host must release with free_buffer. It returns NULL only
// for an unknown handle or missing out parameter.
//
//export send_message
func send_message(handle C.uint64_t, data *C.uint8_t, length C.uint32_t, outLen *C.uint32_t) *C.uint8_t {
	inst := getInstance(uint64(handle))
	if inst == nil || outLen == nil {
		return nil
	}

	var msg []byte
	if data != nil && length > 0 {
		msg = C.GoBytes(unsafe.Pointer(data), C.int(length))
	}

	return handOut(inst, inst.service.HandleMessage(msg), outLen)
}

// transcribe_speech runs one wake-word-gated listening session over the
// microphone: passive windows are scanned for the context's wake words and
// the first active-phase transcript completes the call. ctx_bytes is an
// encoded Context; the returned buffer is the updated Context with the
// transcript filled in. listen_duration_ms bounds the active phase. The call
// blocks; hosts wanting asynchronous delivery register a notify port and
// destroy the context to cancel. On failure it returns the error text and
// sets *is_error to 1.
//
//export transcribe_speech
func transcribe_speech(handle C.uint64_t, ctxBytes *C.uint8_t, ctxLen C.uint32_t, listenDurationMS C.uint32_t, outLen *C.uint32_t, isError *C.uint8_t) *C.uint8_t {
	inst := getInstance(uint64(handle))
	if inst == nil || outLen == nil || isError == nil {
		return nil
	}
	*isError = 0

	var reqCtx *protocol.Context
	if ctxBytes != nil && ctxLen > 0 {
		decoded, err := protocol.DecodeContext(C.GoBytes(unsafe.Pointer(ctxBytes), C.int(ctxLen)))
		if err != nil {
			*isError = 1
			return handOut(inst, []byte(err.Error()), outLen)
		}
		reqCtx = decoded
	} else {
		reqCtx = &protocol.Context{}
	}

	updated, err := inst.service.Listen(context.Background(), reqCtx,
		time.Duration(listenDurationMS)*time.Millisecond)
	if err != nil {
		*isError = 1
		return handOut(inst, []byte(err.Error()), outLen)
	}

	return handOut(inst, protocol.EncodeContext(updated), outLen)
}

// free_buffer releases a buffer returned by this library. NULL is a no-op.
// It returns 0 on success and -1 when the pointer is unknown or already
// freed.
//
//export free_buffer
func free_buffer(handle C.uint64_t, ptr *C.uint8_t) C.int32_t {
	if ptr == nil {
		return 0
	}

	inst := getInstance(uint64(handle))
	if inst == nil {
		return -1
	}

	if err := inst.service.FreeBuffer(uint64(uintptr(unsafe.Pointer(ptr)))); err != nil {
		return -1
	}

	C.free(unsafe.Pointer(ptr))
	return 0
}

// register_notify_port subscribes a C callback to completed transcripts and
// returns a subscription id for unregister_notify_port. The callback runs on
// a library goroutine and must not block; the transcript pointer is only
// valid for the duration of the call.
//
//export register_notify_port
func register_notify_port(handle C.uint64_t, cb C.notify_cb) C.uint64_t {
	inst := getInstance(uint64(handle))
	if inst == nil || cb == nil {
		return 0
	}

	id := inst.notifier.Register(func(transcript string) {
		ctext := C.CString(transcript)
		C.invoke_notify(cb, ctext)
		C.free(unsafe.Pointer(ctext))
	})

	return C.uint64_t(id)
}

// unregister_notify_port removes a subscription created by
// register_notify_port.
//
//export unregister_notify_port
func unregister_notify_port(handle C.uint64_t, id C.uint64_t) {
	inst := getInstance(uint64(handle))
	if inst == nil {
		return
	}

	inst.notifier.Unregister(uint64(id))
}

func main() {}
