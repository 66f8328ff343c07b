package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/capi/wasmmem"
	"github.com/wippyai/corebind/changeset"
	"github.com/wippyai/corebind/config"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/internal/memcore"
	"github.com/wippyai/corebind/value"
)

const peopleYAML = `
path: people
schema:
  - name: Person
    primary_key: name
    properties:
      - {name: name, type: string}
      - {name: age, type: int}
      - {name: best, type: object, link: Person}
      - {name: pet, type: object, link: Pet}
  - name: Pet
    primary_key: id
    properties:
      - {name: id, type: int}
      - {name: owner, type: object, link: Person}
  - name: Note
    properties:
      - {name: text, type: string}
`

type Person struct {
	Name string  `corebind:"name"`
	Age  int     `corebind:"age"`
	Best *Person `corebind:"best"`
	Pet  *Pet    `corebind:"pet"`
}

func (*Person) ClassName() string { return "Person" }

type Pet struct {
	Owner *Person `corebind:"owner"`
	ID    int64   `corebind:"id"`
}

func (*Pet) ClassName() string { return "Pet" }

func peopleConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(peopleYAML))
	require.NoError(t, err)
	return cfg
}

type StoreSuite struct {
	suite.Suite
	eng   *memcore.Engine
	env   *Env
	store *Store
	logs  *observer.ObservedLogs
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.eng = memcore.New()
	core, logs := observer.New(zapcore.DebugLevel)
	s.logs = logs
	s.env = NewEnv(s.eng, WithLogger(zap.New(core)))

	st, err := s.env.Open(s.ctx, peopleConfig(s.T()))
	s.Require().NoError(err)
	s.store = st
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
	s.NoError(s.eng.Shutdown())
}

func (s *StoreSuite) create(name string, age int) *Object {
	var obj *Object
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error {
		var err error
		if obj, err = tx.Create("Person", name); err != nil {
			return err
		}
		return tx.Set(obj, "age", age)
	}))
	return obj
}

func (s *StoreSuite) TestCreateAndGet() {
	ada := s.create("ada", 36)
	defer ada.Close()

	age, err := GetAs[int](ada, "age")
	s.Require().NoError(err)
	s.Equal(36, age)

	name, err := ada.Get("name")
	s.Require().NoError(err)
	s.True(value.String("ada").Equal(name))

	_, err = ada.Get("height")
	s.ErrorIs(err, &errors.Error{Kind: errors.KindFieldUnknown})

	_, err = GetAs[int8](ada, "name")
	s.Equal(errors.KindTypeMismatch, errors.KindOf(err))
}

func (s *StoreSuite) TestWriteRollsBackOnError() {
	ada := s.create("ada", 1)
	defer ada.Close()

	boom := errors.InvalidInput(errors.PhaseOpen, "boom")
	err := s.store.Write(s.ctx, func(tx *Txn) error {
		s.Require().NoError(tx.Set(ada, "age", 99))
		return boom
	})
	s.ErrorIs(err, boom)

	age, err := GetAs[int](ada, "age")
	s.Require().NoError(err)
	s.Equal(1, age)
}

func (s *StoreSuite) TestWriteRollsBackOnPanic() {
	ada := s.create("ada", 1)
	defer ada.Close()

	s.Panics(func() {
		_ = s.store.Write(s.ctx, func(tx *Txn) error {
			s.Require().NoError(tx.Set(ada, "age", 99))
			panic("boom")
		})
	})
	age, err := GetAs[int](ada, "age")
	s.Require().NoError(err)
	s.Equal(1, age)

	// the write lock was released
	s.NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Set(ada, "age", 2) }))
}

func (s *StoreSuite) TestFind() {
	s.create("ada", 1).Close()

	obj, found, err := s.store.Find("Person", "ada")
	s.Require().NoError(err)
	s.Require().True(found)
	defer obj.Close()
	s.Equal("Person", obj.Class())

	_, found, err = s.store.Find("Person", "nobody")
	s.Require().NoError(err)
	s.False(found)

	_, _, err = s.store.Find("Ghost", "x")
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *StoreSuite) TestQuery() {
	for i, name := range []string{"ada", "bob", "cyd"} {
		s.create(name, 20+i*10).Close()
	}

	res, err := s.store.Query("Person", "age >= $0 AND name IN $1", 30, []string{"bob", "cyd", "dee"})
	s.Require().NoError(err)
	defer res.Close()

	n, err := res.Len()
	s.Require().NoError(err)
	s.Equal(2, n)

	first, err := res.Get(0)
	s.Require().NoError(err)
	defer first.Close()
	name, err := GetAs[string](first, "name")
	s.Require().NoError(err)
	s.Equal("bob", name)

	_, err = s.store.Query("Person", "age > $0", struct{}{})
	s.ErrorIs(err, errors.ErrUnsupportedType)
}

func (s *StoreSuite) TestQueryWithObjectArgument() {
	ada := s.create("ada", 1)
	defer ada.Close()
	bob := s.create("bob", 2)
	defer bob.Close()
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Set(bob, "best", ada) }))

	res, err := s.store.Query("Person", "best == $0", ada)
	s.Require().NoError(err)
	defer res.Close()
	n, err := res.Len()
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreSuite) TestCopyImportsGraphOnce() {
	ada := &Person{Name: "ada", Age: 36}
	bob := &Person{Name: "bob", Age: 40, Best: ada}
	ada.Best = bob
	pet := &Pet{ID: 7, Owner: ada}
	ada.Pet = pet
	bob.Pet = pet

	var root *Object
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error {
		var err error
		root, err = tx.Copy(ada, convert.UpdatePolicyError)
		return err
	}))
	defer root.Close()

	people, err := s.store.Query("Person", "TRUEPREDICATE")
	s.Require().NoError(err)
	defer people.Close()
	n, err := people.Len()
	s.Require().NoError(err)
	s.Equal(2, n)

	pets, err := s.store.Query("Pet", "TRUEPREDICATE")
	s.Require().NoError(err)
	defer pets.Close()
	n, err = pets.Len()
	s.Require().NoError(err)
	s.Equal(1, n)

	best, err := GetAs[value.Link](root, "best")
	s.Require().NoError(err)
	bobObj, err := s.store.objectAt(best)
	s.Require().NoError(err)
	defer bobObj.Close()
	back, err := GetAs[value.Link](bobObj, "best")
	s.Require().NoError(err)
	s.Equal(root.Link(), back)

	s.Equal(5, s.env.Tracker().Len(), "imported intermediates are released with the transaction")
}

func (s *StoreSuite) TestCopyUpdatePolicy() {
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error {
		obj, err := tx.Copy(&Person{Name: "ada", Age: 1}, convert.UpdatePolicyError)
		if err != nil {
			return err
		}
		return obj.Close()
	}))

	err := s.store.Write(s.ctx, func(tx *Txn) error {
		_, err := tx.Copy(&Person{Name: "ada", Age: 2}, convert.UpdatePolicyError)
		return err
	})
	s.ErrorIs(err, errors.ErrAlreadyExists)

	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error {
		obj, err := tx.Copy(&Person{Name: "ada", Age: 3}, convert.UpdatePolicyAll)
		if err != nil {
			return err
		}
		return obj.Close()
	}))
	obj, _, err := s.store.Find("Person", "ada")
	s.Require().NoError(err)
	defer obj.Close()
	age, err := GetAs[int](obj, "age")
	s.Require().NoError(err)
	s.Equal(3, age)
}

func (s *StoreSuite) TestCreateWithoutPrimaryKey() {
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error {
		note, err := tx.Create("Note", nil)
		if err != nil {
			return err
		}
		defer note.Close()
		return tx.Set(note, "text", "hello")
	}))

	err := s.store.Write(s.ctx, func(tx *Txn) error {
		_, err := tx.Create("Note", "pk")
		return err
	})
	s.Equal(errors.KindInvalidInput, errors.KindOf(err))
}

func (s *StoreSuite) TestDecode() {
	ada := s.create("ada", 36)
	defer ada.Close()
	bob := s.create("bob", 40)
	defer bob.Close()
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Set(ada, "best", bob) }))

	var view struct {
		Name  string     `corebind:"name"`
		Age   int32      `corebind:"age"`
		Best  *Object    `corebind:"best"`
		Pet   value.Link `corebind:"pet"`
		Extra string     `corebind:"-"`
	}
	view.Extra = "kept"
	s.Require().NoError(ada.Decode(&view))
	defer view.Best.Close()

	s.Equal("ada", view.Name)
	s.Equal(int32(36), view.Age)
	s.Require().NotNil(view.Best)
	s.True(view.Best.Equal(bob))
	s.Equal(value.Link{}, view.Pet, "null links leave the field untouched")
	s.Equal("kept", view.Extra)

	var narrow struct {
		Age int8 `corebind:"age"`
	}
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Set(ada, "age", 1000) }))
	s.Error(ada.Decode(&narrow))
}

func (s *StoreSuite) TestDeleteInvalidatesObject() {
	ada := s.create("ada", 1)
	defer ada.Close()
	s.True(ada.IsValid())

	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Delete(ada) }))
	s.False(ada.IsValid())
	_, err := ada.Get("age")
	s.ErrorIs(err, errors.ErrNative)
}

func (s *StoreSuite) TestObserveResults() {
	s.create("ada", 1).Close()

	res, err := s.store.Query("Person", "age < $0", 50)
	s.Require().NoError(err)
	defer res.Close()

	got := make(chan changeset.Collection, 4)
	sub, err := res.Observe(func(c changeset.Collection) { got <- c })
	s.Require().NoError(err)
	defer sub.Close()

	s.create("bob", 2).Close()
	select {
	case c := <-got:
		s.Equal([]int{1}, c.Insertions)
		s.Empty(c.Deletions)
	case <-time.After(time.Second):
		s.FailNow("no notification")
	}

	s.Require().NoError(sub.Close())
	s.create("cyd", 3).Close()
	select {
	case <-got:
		s.Fail("closed subscription delivered")
	case <-time.After(20 * time.Millisecond):
	}
}

func (s *StoreSuite) TestObserveRanges() {
	res, err := s.store.Query("Person", "TRUEPREDICATE")
	s.Require().NoError(err)
	defer res.Close()

	got := make(chan changeset.Ranges, 1)
	sub, err := res.ObserveRanges(func(r changeset.Ranges) { got <- r })
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error {
		for _, name := range []string{"a", "b", "c"} {
			obj, err := tx.Create("Person", name)
			if err != nil {
				return err
			}
			obj.Close()
		}
		return nil
	}))
	select {
	case r := <-got:
		s.Equal([]changeset.Range{{From: 0, To: 3}}, r.Insertions)
	case <-time.After(time.Second):
		s.FailNow("no notification")
	}
}

func (s *StoreSuite) TestObserveObjectRunsOnLooper() {
	ada := s.create("ada", 1)
	defer ada.Close()

	type delivery struct {
		change ObjectChange
		order  int
	}
	var mu sync.Mutex
	var seen []delivery
	done := make(chan struct{})

	sub, err := ada.Observe(func(c ObjectChange) {
		mu.Lock()
		seen = append(seen, delivery{change: c, order: len(seen)})
		n := len(seen)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	})
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Set(ada, "age", 2) }))
	s.Require().NoError(s.store.Write(s.ctx, func(tx *Txn) error { return tx.Delete(ada) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		s.FailNow("missing object notifications")
	}
	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"age"}, seen[0].change.Properties)
	s.False(seen[0].change.Deleted)
	s.True(seen[1].change.Deleted)
}

func (s *StoreSuite) TestStaleObjectAcrossStores() {
	ada := s.create("ada", 1)
	defer ada.Close()

	other, err := s.env.Open(s.ctx, peopleConfig(s.T()))
	s.Require().NoError(err)
	defer other.Close()
	s.NotEqual(s.store.Generation(), other.Generation())

	err = other.Write(s.ctx, func(tx *Txn) error {
		bob, err := tx.Create("Person", "bob")
		if err != nil {
			return err
		}
		defer bob.Close()
		return tx.Set(bob, "best", ada)
	})
	s.ErrorIs(err, errors.ErrStaleObject)

	_, err = other.Query("Person", "best == $0", ada)
	s.ErrorIs(err, errors.ErrStaleObject)

	resolved, err := other.Resolve(ada)
	s.Require().NoError(err)
	defer resolved.Close()
	s.Equal(other.Generation(), resolved.Generation())
	s.Require().NoError(other.Write(s.ctx, func(tx *Txn) error {
		bob, err := tx.Create("Person", "bob")
		if err != nil {
			return err
		}
		defer bob.Close()
		return tx.Set(bob, "best", resolved)
	}))
}

func (s *StoreSuite) TestDeleteFilesWhileInUse() {
	_, err := s.env.DeleteFiles(s.store.Path())
	s.Require().ErrorIs(err, errors.ErrResourceInUse)

	obj := s.create("ada", 1)
	s.Require().NoError(s.store.Close())

	_, err = s.env.DeleteFiles(s.store.Path())
	s.ErrorIs(err, errors.ErrResourceInUse, "a live object still pins the file")

	s.Require().NoError(obj.Close())
	_, err = s.env.DeleteFiles(s.store.Path())
	s.NoError(err)
}

func (s *StoreSuite) TestDeleteFilesWhileSubscribed() {
	obj := s.create("ada", 1)
	sub, err := obj.Observe(func(ObjectChange) {})
	s.Require().NoError(err)
	s.Require().NoError(obj.Close())
	s.Require().NoError(s.store.Close())

	_, err = s.env.DeleteFiles(s.store.Path())
	s.ErrorIs(err, errors.ErrResourceInUse, "a live subscription still pins the file")

	s.Require().NoError(sub.Close())
	_, err = s.env.DeleteFiles(s.store.Path())
	s.NoError(err)
}

func (s *StoreSuite) TestClosedStore() {
	s.Require().NoError(s.store.Close())
	s.NoError(s.store.Close())

	_, err := s.store.Query("Person", "TRUEPREDICATE")
	s.ErrorIs(err, errors.ErrClosed)
	err = s.store.Write(s.ctx, func(*Txn) error { return nil })
	s.ErrorIs(err, errors.ErrClosed)
}

func (s *StoreSuite) TestHandleEventsAreLogged() {
	s.create("ada", 1).Close()
	entries := s.logs.FilterMessage("handle released").All()
	s.NotEmpty(entries)
	s.Equal("object", entries[0].ContextMap()["kind"])
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

// lyingEngine reports one more insertion than it writes.
type lyingEngine struct {
	*memcore.Engine
}

func (l lyingEngine) CollectionChanges(p capi.Ptr, out capi.IndexBuffers) (capi.ChangeCounts, error) {
	c, err := l.Engine.CollectionChanges(p, out)
	c.Insertions++
	return c, err
}

func TestConsistencyViolationReachesHandler(t *testing.T) {
	eng := memcore.New()
	defer eng.Shutdown()

	violations := make(chan error, 1)
	env := NewEnv(lyingEngine{eng}, WithConsistencyHandler(func(err error) { violations <- err }))
	st, err := env.Open(context.Background(), peopleConfig(t))
	require.NoError(t, err)
	defer st.Close()

	res, err := st.Query("Person", "TRUEPREDICATE")
	require.NoError(t, err)
	defer res.Close()
	delivered := false
	sub, err := res.Observe(func(changeset.Collection) { delivered = true })
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, st.Write(context.Background(), func(tx *Txn) error {
		obj, err := tx.Create("Person", "ada")
		if err != nil {
			return err
		}
		return obj.Close()
	}))

	select {
	case err := <-violations:
		assert.ErrorIs(t, err, errors.ErrConsistency)
	case <-time.After(time.Second):
		t.Fatal("violation not reported")
	}
	assert.False(t, delivered)
}

func TestDefaultConsistencyHandlerPanics(t *testing.T) {
	eng := memcore.New()
	defer eng.Shutdown()
	core, logs := observer.New(zapcore.ErrorLevel)
	env := NewEnv(eng, WithLogger(zap.New(core)))
	violation := errors.Consistency([]string{"collection", "insertions"}, "mismatch")

	assert.PanicsWithValue(t, violation, func() { env.consistency(violation) })
	assert.Equal(t, 1, logs.Len())
}

func TestOpenWithSyncConfig(t *testing.T) {
	eng := memcore.New(memcore.WithApp("tasks", map[string]string{"ada@example.com": "secret"}))
	defer eng.Shutdown()
	env := NewEnv(eng)

	cfg := peopleConfig(t)
	cfg.Sync = &config.Sync{AppID: "tasks", Provider: "email", Email: "ada@example.com", Password: "secret"}
	st, err := env.Open(context.Background(), cfg)
	require.NoError(t, err)

	session, ok, err := st.SyncSession()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, session.WaitForUpload(context.Background()))
	require.NoError(t, session.Close())
	require.NoError(t, st.Close())
	assert.Zero(t, env.Tracker().Len())

	cfg.Sync.Password = "wrong"
	_, err = env.Open(context.Background(), cfg)
	assert.ErrorIs(t, err, errors.ErrNative)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	eng := memcore.New()
	defer eng.Shutdown()
	env := NewEnv(eng)

	cfg := peopleConfig(t)
	cfg.Path = filepath.Join(t.TempDir(), "people.db")
	cfg.Persistence = config.PersistenceSQLite

	st, err := env.Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, st.Write(context.Background(), func(tx *Txn) error {
		obj, err := tx.Copy(&Person{Name: "ada", Age: 36, Pet: &Pet{ID: 1}}, convert.UpdatePolicyError)
		if err != nil {
			return err
		}
		return obj.Close()
	}))
	require.NoError(t, st.Close())

	st, err = env.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer st.Close()

	ada, found, err := st.Find("Person", "ada")
	require.NoError(t, err)
	require.True(t, found)
	defer ada.Close()

	var view struct {
		Pet  *Object `corebind:"pet"`
		Name string  `corebind:"name"`
		Age  int     `corebind:"age"`
	}
	require.NoError(t, ada.Decode(&view))
	defer view.Pet.Close()
	assert.Equal(t, "ada", view.Name)
	assert.Equal(t, 36, view.Age)
	id, err := GetAs[int64](view.Pet, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestStoreOnWasmMemory(t *testing.T) {
	ctx := context.Background()
	mem, err := wasmmem.New(ctx)
	require.NoError(t, err)
	defer mem.Close(ctx)

	eng := memcore.New(memcore.WithMemory(mem))
	defer eng.Shutdown()

	st, err := NewEnv(eng).Open(ctx, peopleConfig(t))
	require.NoError(t, err)
	defer st.Close()

	var ada *Object
	require.NoError(t, st.Write(ctx, func(tx *Txn) error {
		var err error
		if ada, err = tx.Create("Person", "ada"); err != nil {
			return err
		}
		return tx.Set(ada, "age", 36)
	}))
	defer ada.Close()

	age, err := GetAs[int](ada, "age")
	require.NoError(t, err)
	assert.Equal(t, 36, age)

	res, err := st.Query("Person", "name BEGINSWITH $0", "a")
	require.NoError(t, err)
	defer res.Close()
	n, err := res.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
