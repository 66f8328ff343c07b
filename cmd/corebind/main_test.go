package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/corebind/changeset"
	"github.com/wippyai/corebind/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, path := range [][]string{
		{"value", "encode"},
		{"value", "decode"},
		{"oid", "new"},
		{"oid", "inspect"},
		{"demo"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestGolden(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"value_encode_int", []string{"value", "encode", "int", "42"}},
		{"value_encode_link", []string{"value", "encode", "link", "2:99"}},
		{"value_encode_null", []string{"value", "encode", "null"}},
		{"value_decode_link", []string{"value", "decode", "0a02c601"}},
		{"oid_inspect", []string{"oid", "inspect", "507f1f77bcf86cd799439011"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			golden(t).Assert(t, tt.name, []byte(out))
		})
	}
}

func TestValueEncodeDecodeAgree(t *testing.T) {
	for _, args := range [][]string{
		{"string", "grüße"},
		{"bool", "true"},
		{"double", "-0.5"},
		{"timestamp", "2025-03-14T15:09:26.5Z"},
		{"uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"binary", "00ff"},
	} {
		out, err := execute(t, append([]string{"value", "encode"}, args...)...)
		require.NoError(t, err, "encode %v", args)

		bin := regexp.MustCompile(`(?m)^binary\s+(\S+)$`).FindStringSubmatch(out)
		require.Len(t, bin, 2, out)
		decoded, err := execute(t, "value", "decode", bin[1])
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(out, decoded), "encode %v:\n%s\ndecode:\n%s", args, out, decoded)
	}
}

func TestValueErrors(t *testing.T) {
	_, err := execute(t, "value", "encode", "int", "forty")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = execute(t, "value", "encode", "decimal128", "1")
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)

	_, err = execute(t, "value", "encode", "null", "x")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = execute(t, "value", "decode", "zz")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = execute(t, "value", "decode", "0154ff")
	assert.Error(t, err, "trailing bytes")
}

func TestOIDNew(t *testing.T) {
	out, err := execute(t, "oid", "new", "-n", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Regexp(t, `^[0-9a-f]{24}$`, l)
	}
	assert.NotEqual(t, lines[0], lines[1])

	_, err = execute(t, "oid", "new", "-n", "0")
	assert.Error(t, err)

	_, err = execute(t, "oid", "inspect", "abc")
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "opened demo")
	assert.Contains(t, out, "> add ada (36), bob (12), cyd (40)\n  adults: insertions=[0 1]\n")
	assert.Contains(t, out, "> bob turns 18\n  adults: insertions=[1]\n")
	assert.Contains(t, out, "> remove ada\n  adults: deletions=[0]\n")
	assert.True(t, strings.HasSuffix(out, "adults:\n  bob    18\n  cyd    40\n  dan    52\n"), out)
}

func TestDemoWithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	db := filepath.Join(t.TempDir(), "people.db")
	require.NoError(t, os.WriteFile(path, []byte(`
path: `+db+`
persistence: sqlite
schema:
  - name: Person
    primary_key: name
    properties:
      - {name: name, type: string}
      - {name: age, type: int}
      - {name: best, type: object, link: Person}
`), 0o600))

	out, err := execute(t, "--config", path, "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "opened "+db)
}

func TestDemoOnWasmMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("path: demo\nmemory: wasm\n"), 0o600))

	out, err := execute(t, "--config", path, "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "> bob turns 18\n  adults: insertions=[1]\n")
	assert.True(t, strings.HasSuffix(out, "adults:\n  bob    18\n  cyd    40\n  dan    52\n"), out)
}

func TestDemoInteractiveNeedsTerminal(t *testing.T) {
	_, err := execute(t, "demo", "-i")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "no changes", describe(changeset.Collection{}))
	assert.Equal(t, "deletions=[2] insertions=[0 4] modifications=[1] move=3->0 cleared",
		describe(changeset.Collection{
			Deletions:          []int{2},
			Insertions:         []int{0, 4},
			Modifications:      []int{1},
			ModificationsAfter: []int{1},
			Moves:              []changeset.Move{{From: 3, To: 0}},
			Cleared:            true,
		}))
}

func TestInteractiveModel(t *testing.T) {
	cfg, err := demoConfig(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := openSession(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	m := newInteractiveModel(ctx, s)
	assert.Contains(t, m.View(), "no people yet")

	msg := m.write(func() error { return s.add(ctx, "ada", 36) })()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	m.Update(cmd())
	require.Len(t, m.rows, 1)
	assert.Equal(t, personView{Name: "ada", Age: 36}, m.rows[0])

	m.Update(m.waitForChange())
	require.Len(t, m.events, 1)
	assert.Equal(t, "insertions=[0]", m.events[0])
	assert.Contains(t, m.View(), "insertions=[0]")

	_, _, err = parsePerson("solo")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	name, age, err := parsePerson("bob 12")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
	assert.Equal(t, 12, age)
}
