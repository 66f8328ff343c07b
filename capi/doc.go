// Package capi describes the C ABI of the native persistence engine as Go
// interfaces and fixed layouts.
//
// The engine is a black box. Everything the binding needs from it is
// expressed here:
//
//	Memory / Allocator   native address space shared with the engine
//	Ptr                  opaque resource address (realm, object, results, ...)
//	Core                 open/close, transactions, schema, objects, queries
//	Changes              change-set readers for notification callbacks
//	Apps                 login and sync session events
//	Scheduler            re-entry hook the engine calls from its own threads
//
// Tagged values and query arguments cross the boundary as addresses in
// Memory; change-set indices cross as caller-sized buffers together with the
// engine's actual counts.
//
// Two memory backends are provided: heap (Go-allocated, used with
// in-process engines) and wasmmem (a wazero linear memory).
package capi
