// Package store is the host-facing storage API built on the binding layer.
//
// An Env ties an engine to a conversion registry, a handle tracker and a
// logger. Each Store it opens gets its own looper: the engine's scheduled
// work and every notification for that store run there, one at a time.
//
//	env := store.NewEnv(eng, store.WithLogger(log))
//	s, err := env.Open(ctx, cfg)
//	defer s.Close()
//
//	err = s.Write(ctx, func(tx *store.Txn) error {
//		_, err := tx.Copy(&Task{ID: id, Title: "write docs"}, convert.UpdatePolicyError)
//		return err
//	})
//
//	res, err := s.Query("Task", "done == $0", false)
//	sub, err := res.Observe(func(c changeset.Collection) { ... })
package store
