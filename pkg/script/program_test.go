package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-scan/lotus/pkg/target"
)

func TestCompile_ScanType(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		kind    target.Kind
		hasKind bool
	}{
		{"int", `SCAN_TYPE := 2; main := func() {}`, target.URL, true},
		{"string", `SCAN_TYPE := "host"; main := func() {}`, target.Host, true},
		{"full http", `SCAN_TYPE := 1; main := func() {}`, target.FullHTTP, true},
		{"out of range", `SCAN_TYPE := 9; main := func() {}`, 0, false},
		{"missing", `main := func() {}`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Compile("t.tengo", []byte(tt.src))
			require.NoError(t, p.Err())
			kind, ok := p.ScanType()
			assert.Equal(t, tt.hasKind, ok)
			if tt.hasKind {
				assert.Equal(t, tt.kind, kind)
				assert.True(t, p.Matches(tt.kind))
			}
			for _, k := range target.Kinds {
				if k != tt.kind || !tt.hasKind {
					assert.False(t, p.Matches(k), "kind %s", k)
				}
			}
		})
	}
}

func TestCompile_LoadErrorMatchesEveryKind(t *testing.T) {
	p := Compile("broken.tengo", []byte(`main := func( {`))
	require.Error(t, p.Err())
	assert.ErrorIs(t, p.Err(), ErrLoad)
	for _, k := range target.Kinds {
		assert.True(t, p.Matches(k))
	}
	err := p.Run(context.Background(), &Env{Target: target.Target{Kind: target.URL, Value: "http://t/"}})
	assert.ErrorIs(t, err, ErrLoad)
}

func TestCompile_TopLevelFailureIsLoadError(t *testing.T) {
	p := Compile("t.tengo", []byte(`SCAN_TYPE := 2; x := 1 - "a"`))
	assert.ErrorIs(t, p.Err(), ErrLoad)
}

func TestCompile_Functions(t *testing.T) {
	p := Compile("t.tengo", []byte(`
SCAN_TYPE := 2
helper := func(x) { return x }
main := func() {}
`))
	require.NoError(t, p.Err())
	assert.True(t, p.HasMain())
	assert.True(t, p.HasFunction("helper"))
	assert.False(t, p.HasFunction("SCAN_TYPE"))
	assert.False(t, p.HasFunction("missing"))
}

func TestCompile_MainWithParameterIsNotMain(t *testing.T) {
	p := Compile("t.tengo", []byte(`SCAN_TYPE := 2; main := func(x) {}`))
	require.NoError(t, p.Err())
	assert.False(t, p.HasMain())
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.tengo"), []byte(`SCAN_TYPE := 2; main := func() {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tengo"), []byte(`SCAN_TYPE := 3; main := func() {}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	progs, err := LoadPath(dir)
	require.NoError(t, err)
	require.Len(t, progs, 2)
	assert.Equal(t, filepath.Join(dir, "a.tengo"), progs[0].Path)
	assert.Equal(t, filepath.Join(dir, "b.tengo"), progs[1].Path)
	assert.Equal(t, dir, progs[0].Dir())

	single, err := LoadPath(filepath.Join(dir, "b.tengo"))
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = LoadPath(t.TempDir())
	assert.ErrorIs(t, err, ErrNoScripts)

	_, err = LoadPath(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestTrailer(t *testing.T) {
	got := trailer([]string{"check", "main"})
	assert.Contains(t, got, `if __lotus_invoke__ == "check" {`)
	assert.Contains(t, got, `__lotus_result__ = check(__lotus_item__)`)
	assert.Contains(t, got, `} else if __lotus_invoke__ == "main" {`)
	assert.Contains(t, got, `__lotus_result__ = main()`)
	assert.Equal(t, "\n\n", trailer(nil))
}

func TestNewStarter_CompilesForEveryKind(t *testing.T) {
	for _, k := range target.Kinds {
		t.Run(k.String(), func(t *testing.T) {
			src, err := NewStarter(StarterOptions{Name: "reflect-check", Kind: k})
			require.NoError(t, err)
			p := Compile("starter.tengo", src)
			require.NoError(t, p.Err(), string(src))
			kind, ok := p.ScanType()
			require.True(t, ok)
			assert.Equal(t, k, kind)
			assert.True(t, p.HasMain())
		})
	}

	_, err := NewStarter(StarterOptions{Kind: 0})
	assert.Error(t, err)
}
