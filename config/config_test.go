package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "tasks.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tasks.corebind", cfg.Path)
	assert.Equal(t, PersistenceSQLite, cfg.Persistence)
	assert.Equal(t, uint64(2), cfg.SchemaVersion)
	require.Len(t, cfg.Schema, 2)
	require.NotNil(t, cfg.Sync)
	assert.Equal(t, "tasks-app", cfg.Sync.AppID)
	assert.Equal(t, "debug", cfg.Log.Level)

	task, ok := cfg.Class("Task")
	require.True(t, ok)
	assert.Equal(t, "id", task.PrimaryKey)
	_, ok = cfg.Class("Nope")
	assert.False(t, ok)
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("path: x.corebind\n"))
	require.NoError(t, err)
	assert.Equal(t, PersistenceMemory, cfg.Persistence)
	assert.Equal(t, DefaultLog(), cfg.Log)
	assert.Empty(t, cfg.Memory)
}

func TestParse_MemoryBackend(t *testing.T) {
	cfg, err := Parse([]byte("path: x\nmemory: wasm\n"))
	require.NoError(t, err)
	assert.Equal(t, MemoryWasm, cfg.Memory)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("path: x\nschemas: []\n"))
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidData, errors.KindOf(err))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		path []string
		kind errors.Kind
	}{
		{
			name: "unknown persistence",
			yaml: "path: x\npersistence: btree\n",
			path: []string{"persistence"},
		},
		{
			name: "unknown memory backend",
			yaml: "path: x\nmemory: mmap\n",
			path: []string{"memory"},
		},
		{
			name: "missing path",
			yaml: "path: ''\n",
			path: []string{"path"},
		},
		{
			name: "unknown property type",
			yaml: "path: x\nschema: [{name: A, properties: [{name: f, type: complex}]}]\n",
			path: []string{"schema", "A", "f"},
		},
		{
			name: "decimal unsupported",
			yaml: "path: x\nschema: [{name: A, properties: [{name: f, type: decimal128}]}]\n",
			path: []string{"schema", "A", "f"},
			kind: errors.KindUnsupportedType,
		},
		{
			name: "dangling link",
			yaml: "path: x\nschema: [{name: A, properties: [{name: b, type: object, link: B}]}]\n",
			path: []string{"schema", "A", "b"},
		},
		{
			name: "bool primary key",
			yaml: "path: x\nschema: [{name: A, primary_key: f, properties: [{name: f, type: bool}]}]\n",
			path: []string{"schema", "A", "f"},
		},
		{
			name: "absent primary key",
			yaml: "path: x\nschema: [{name: A, primary_key: id, properties: []}]\n",
			path: []string{"schema", "A"},
		},
		{
			name: "duplicate class",
			yaml: "path: x\nschema: [{name: A, properties: []}, {name: A, properties: []}]\n",
			path: []string{"schema", "A"},
		},
		{
			name: "sync without app",
			yaml: "path: x\nsync: {provider: anonymous}\n",
			path: []string{"sync", "app_id"},
		},
		{
			name: "bad log level",
			yaml: "path: x\nlog: {level: loud, encoding: json}\n",
			path: []string{"log", "level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			want := tt.kind
			if want == "" {
				want = errors.KindInvalidInput
			}
			assert.Equal(t, want, e.Kind)
			assert.Equal(t, errors.PhaseConfig, e.Phase)
			assert.Equal(t, tt.path, e.Path)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src, err := Load(filepath.Join("testdata", "tasks.yaml"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, src.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src, back)
}

func TestNative(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "tasks.yaml"))
	require.NoError(t, err)

	native := cfg.Native(nil)
	require.Len(t, native.Schema, 2)
	assert.Equal(t, "tasks.corebind", native.Path)

	task := native.Schema[1]
	assert.Equal(t, "Task", task.Class.Name)
	assert.Equal(t, 4, task.Class.NumProperties)

	id := task.Properties[0]
	assert.Equal(t, capi.PropertyObjectID, id.Type)
	assert.True(t, id.Primary())
	assert.False(t, id.Nullable())

	owner := task.Properties[3]
	assert.Equal(t, capi.PropertyObject, owner.Type)
	assert.Equal(t, "Person", owner.LinkTarget)
	assert.True(t, owner.Nullable(), "links are always nullable")

	assert.NotZero(t, task.Properties[1].Flags&capi.PropertyIndexed)
}

func TestLogBuild(t *testing.T) {
	l, err := Log{Level: "warn", Encoding: "json"}.Build()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = Log{Level: "info", Encoding: "xml"}.Build()
	assert.Error(t, err)
}
