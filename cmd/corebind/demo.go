package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/corebind/capi/wasmmem"
	"github.com/wippyai/corebind/changeset"
	"github.com/wippyai/corebind/config"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/internal/memcore"
	"github.com/wippyai/corebind/store"
)

const demoSchema = `
path: demo
schema:
  - name: Person
    primary_key: name
    properties:
      - {name: name, type: string}
      - {name: age, type: int}
      - {name: best, type: object, link: Person}
`

// notifyTimeout bounds how long the demo waits for a change notification.
var notifyTimeout = 2 * time.Second

// person is imported with Txn.Copy.
type person struct {
	Best *person `corebind:"best"`
	Name string  `corebind:"name"`
	Age  int     `corebind:"age"`
}

func (*person) ClassName() string { return "Person" }

// personView is what the demo decodes stored people into.
type personView struct {
	Name string `corebind:"name"`
	Age  int    `corebind:"age"`
}

func newDemoCommand(root *rootOptions) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted session against the reference engine",
		Long: `Open a storage on the in-process reference engine, observe the
adults among its people and apply a few writes, printing every change
notification. With -i the people are shown in a terminal UI instead.

Without --config a built-in schema with a Person class is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := demoConfig(root.cfg)
			if err != nil {
				return err
			}
			if interactive {
				if !term.IsTerminal(int(os.Stdout.Fd())) {
					return errors.InvalidInput(errors.PhaseOpen, "interactive mode needs a terminal")
				}
				return runInteractive(cmd.Context(), cfg, root.log)
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), cfg, root.log)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "interactive mode with TUI")
	return cmd
}

// demoConfig uses cfg when it declares a Person class and the built-in
// schema otherwise, keeping cfg's logging.
func demoConfig(cfg *config.Config) (*config.Config, error) {
	if cfg != nil {
		if _, ok := cfg.Class("Person"); ok {
			return cfg, nil
		}
	}
	out, err := config.Parse([]byte(demoSchema))
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		out.Log = cfg.Log
		out.Memory = cfg.Memory
	}
	return out, nil
}

// session is an open demo storage with an observed query over adults.
type session struct {
	eng     *memcore.Engine
	st      *store.Store
	adults  *store.Results
	people  *store.Results
	changes chan changeset.Collection
	closers []func() error
}

func openSession(ctx context.Context, cfg *config.Config, log *zap.Logger) (*session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &session{changes: make(chan changeset.Collection, 16)}
	opts := []memcore.Option{memcore.WithLogger(log.Named("engine"))}
	if cfg.Memory == config.MemoryWasm {
		mem, err := wasmmem.New(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseOpen, errors.KindNative, err, "wasm memory")
		}
		s.closers = append(s.closers, func() error { return mem.Close(context.Background()) })
		opts = append(opts, memcore.WithMemory(mem))
	}
	s.eng = memcore.New(opts...)
	s.closers = append(s.closers, s.eng.Shutdown)

	env := store.NewEnv(s.eng, store.WithLogger(log.Named("store")))
	st, err := env.Open(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.st = st
	s.closers = append(s.closers, st.Close)

	if s.adults, err = st.Query("Person", "age >= $0", 18); err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, s.adults.Close)

	if s.people, err = st.Query("Person", "TRUEPREDICATE"); err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, s.people.Close)

	sub, err := s.adults.Observe(func(c changeset.Collection) { s.changes <- c })
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, sub.Close)
	return s, nil
}

// Close releases everything in reverse order of acquisition.
func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// next waits for the next adults change.
func (s *session) next(ctx context.Context) (changeset.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	select {
	case c := <-s.changes:
		return c, nil
	case <-ctx.Done():
		return changeset.Collection{}, errors.Wrap(errors.PhaseCallback, errors.KindCancelled, ctx.Err(), "wait for notification")
	}
}

func (s *session) add(ctx context.Context, name string, age int) error {
	return s.st.Write(ctx, func(tx *store.Txn) error {
		obj, err := tx.Create("Person", name)
		if err != nil {
			return err
		}
		defer obj.Close()
		return tx.Set(obj, "age", age)
	})
}

func (s *session) adjustAge(ctx context.Context, name string, delta int) error {
	obj, ok, err := s.st.Find("Person", name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound(errors.PhaseQuery, "Person", name)
	}
	defer obj.Close()

	age, err := store.GetAs[int](obj, "age")
	if err != nil {
		return err
	}
	return s.st.Write(ctx, func(tx *store.Txn) error {
		return tx.Set(obj, "age", age+delta)
	})
}

func (s *session) remove(ctx context.Context, name string) error {
	obj, ok, err := s.st.Find("Person", name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound(errors.PhaseQuery, "Person", name)
	}
	defer obj.Close()
	return s.st.Write(ctx, func(tx *store.Txn) error { return tx.Delete(obj) })
}

func (s *session) importPerson(ctx context.Context, p *person) error {
	return s.st.Write(ctx, func(tx *store.Txn) error {
		obj, err := tx.Copy(p, convert.UpdatePolicyAll)
		if err != nil {
			return err
		}
		return obj.Close()
	})
}

// list decodes every object of res.
func list(res *store.Results) ([]personView, error) {
	n, err := res.Len()
	if err != nil {
		return nil, err
	}
	out := make([]personView, 0, n)
	for i := 0; i < n; i++ {
		obj, err := res.Get(i)
		if err != nil {
			return nil, err
		}
		var p personView
		err = obj.Decode(&p)
		obj.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func describe(c changeset.Collection) string {
	var parts []string
	add := func(name string, idx []int) {
		if len(idx) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%v", name, idx))
		}
	}
	add("deletions", c.Deletions)
	add("insertions", c.Insertions)
	add("modifications", c.ModificationsAfter)
	for _, m := range c.Moves {
		parts = append(parts, fmt.Sprintf("move=%d->%d", m.From, m.To))
	}
	if c.Cleared {
		parts = append(parts, "cleared")
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, " ")
}

// runDemo applies a fixed sequence of writes and prints the adults change
// each one causes.
func runDemo(ctx context.Context, w io.Writer, cfg *config.Config, log *zap.Logger) error {
	s, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(w, "opened %s (generation %d)\n", s.st.Path(), s.st.Generation())

	steps := []struct {
		title string
		run   func() error
	}{
		{"add ada (36), bob (12), cyd (40)", func() error {
			return s.st.Write(ctx, func(tx *store.Txn) error {
				for _, p := range []personView{{"ada", 36}, {"bob", 12}, {"cyd", 40}} {
					obj, err := tx.Create("Person", p.Name)
					if err != nil {
						return err
					}
					err = tx.Set(obj, "age", p.Age)
					obj.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		}},
		{"bob turns 18", func() error { return s.adjustAge(ctx, "bob", 6) }},
		{"import dan (52) with best friend cyd", func() error {
			return s.importPerson(ctx, &person{Name: "dan", Age: 52, Best: &person{Name: "cyd", Age: 40}})
		}},
		{"remove ada", func() error { return s.remove(ctx, "ada") }},
	}

	for _, step := range steps {
		fmt.Fprintf(w, "> %s\n", step.title)
		if err := step.run(); err != nil {
			return err
		}
		c, err := s.next(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  adults: %s\n", describe(c))
	}

	adults, err := list(s.adults)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "adults:")
	for _, p := range adults {
		fmt.Fprintf(w, "  %-6s %s\n", p.Name, strconv.Itoa(p.Age))
	}
	return nil
}
