// Package corebind binds Go to a C-ABI object persistence engine.
//
// The engine owns schema storage, transactions and sync. This module owns
// everything that crosses the boundary: tagged values, native handle
// lifetimes, conversion between Go types and engine values, scoped native
// buffers for call arguments, callback bridging and change-set decoding.
//
// # Architecture Overview
//
//	corebind/          Root package, package-wide logger
//	├── capi/          Consumed engine ABI, native memory backends
//	├── value/         Tagged value union and its encodings
//	├── handle/        Owned native handles, scopes, live-handle tracker
//	├── arena/         Scoped native buffer arena
//	├── convert/       Value converter framework and registry
//	├── changeset/     Change-set decoder
//	├── bridge/        Completions, loopers, schedulers, notifications
//	├── config/        YAML configuration and logging config
//	├── app/           App users, login and sync sessions
//	├── store/         Host-facing storage API
//	└── internal/      Reference engine used by tests and the CLI
//
// # Quick Start
//
// Open a storage and write to it:
//
//	cfg, err := config.Load("people.yaml")
//	if err != nil {
//		return err
//	}
//	env := store.NewEnv(eng)
//	st, err := env.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	err = st.Write(ctx, func(tx *store.Txn) error {
//		ada, err := tx.Create("Person", "ada")
//		if err != nil {
//			return err
//		}
//		return tx.Set(ada, "age", 36)
//	})
//
// # Threading
//
// The engine invokes callbacks on its own threads. Completions hand single
// results back to the waiting goroutine; notifications are posted to the
// store's looper so observers of one store run sequentially and in order.
//
// # Error Handling
//
// All errors are *errors.Error values carrying the phase, kind and path of
// the failure. Match them with errors.Is against the sentinels in the
// errors package.
package corebind
