package keypool

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeKeyFile(t, "key-one\n\n# a comment\n  key-two  \n#key-three\nkey-four\n")
	keys, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-one", "key-two", "key-four"}, keys)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeKeyFile(t, "# only comments\n\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestNewActivatesFirstKey(t *testing.T) {
	var activated []string
	pool, err := New([]string{"k0", "k1"}, func(key string) error {
		activated = append(activated, key)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"k0"}, activated)
	assert.Equal(t, "k0", pool.Current())
	assert.Equal(t, 0, pool.Index())
}

func TestNewEmptyPool(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}

func TestNewActivationFailure(t *testing.T) {
	_, err := New([]string{"k0"}, func(string) error {
		return fmt.Errorf("bad key")
	}, nil)
	assert.Error(t, err)
}

func TestRotateAdvancesCircularly(t *testing.T) {
	pool, err := New([]string{"k0", "k1", "k2"}, nil, nil)
	require.NoError(t, err)

	key, ok := pool.Rotate()
	assert.True(t, ok)
	assert.Equal(t, "k1", key)

	key, ok = pool.Rotate()
	assert.True(t, ok)
	assert.Equal(t, "k2", key)
}

func TestRotateSweepTerminates(t *testing.T) {
	// With N credentials that all hit quota, a full sweep must report
	// exhaustion after at most N rotations.
	const n = 5
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%d", i)
	}
	pool, err := New(keys, nil, nil)
	require.NoError(t, err)

	rotations := 0
	for {
		_, ok := pool.Rotate()
		rotations++
		if !ok {
			break
		}
		require.LessOrEqual(t, rotations, n, "rotation sweep did not terminate")
	}
	assert.LessOrEqual(t, rotations, n)
	assert.Equal(t, n, pool.Exhausted())
}

func TestRotateSingleKey(t *testing.T) {
	pool, err := New([]string{"only"}, nil, nil)
	require.NoError(t, err)

	key, ok := pool.Rotate()
	assert.False(t, ok)
	assert.Equal(t, "only", key)
}

func TestRotateSkipsFailedActivation(t *testing.T) {
	pool, err := New([]string{"k0", "k1", "k2"}, func(key string) error {
		if key == "k1" {
			return fmt.Errorf("activation refused")
		}
		return nil
	}, nil)
	require.NoError(t, err)

	key, ok := pool.Rotate()
	assert.True(t, ok)
	assert.Equal(t, "k2", key, "k1 should be skipped after failed activation")
}

func TestRotateAfterExhaustionStaysExhausted(t *testing.T) {
	pool, err := New([]string{"k0", "k1"}, nil, nil)
	require.NoError(t, err)

	_, ok := pool.Rotate()
	require.True(t, ok)
	_, ok = pool.Rotate()
	require.False(t, ok)

	// The exhausted set never shrinks within a run.
	_, ok = pool.Rotate()
	assert.False(t, ok)
}

func TestSetIndex(t *testing.T) {
	var activated []string
	pool, err := New([]string{"k0", "k1", "k2"}, func(key string) error {
		activated = append(activated, key)
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, pool.SetIndex(2))
	assert.Equal(t, "k2", pool.Current())
	assert.Equal(t, []string{"k0", "k2"}, activated)

	assert.Error(t, pool.SetIndex(3))
	assert.Error(t, pool.SetIndex(-1))
}
