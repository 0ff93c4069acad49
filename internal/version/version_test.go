package version

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.41.1", "v0.41.1", false},
		{"v0.41.1", "v0.41.1", false},
		{" 1.2.0 ", "v1.2.0", false},
		{"2.0", "v2.0.0", false},
		{"", "", true},
		{"latest", "", true},
		{"1.2.x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Canonical(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidVersion))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"0.3.0", "0.13.0", -1},
		{"0.13.0", "0.3.0", 1},
		{"0.29.10", "0.29.9", 1},
		{"1.2.0", "v1.2.0", 0},
		{"1.2.0", "2.0.0", -1},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "Compare(%s,%s)", c.a, c.b)
	}

	_, err := Compare("nope", "1.0.0")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestParseList(t *testing.T) {
	got, err := ParseList("0.35.0,0.36.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"0.35.0", "0.36.0"}, got)

	got, err = ParseList(" 0.35.0 , ,0.36.0,")
	require.NoError(t, err)
	assert.Equal(t, []string{"0.35.0", "0.36.0"}, got)

	_, err = ParseList("0.35.0,banana")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestParseList_EmptyUsesDefaults(t *testing.T) {
	got, err := ParseList("")
	require.NoError(t, err)
	assert.Equal(t, Defaults, got)

	// The returned slice must not alias the package defaults.
	got[0] = "9.9.9"
	assert.Equal(t, "0.41.1", Defaults[0])
}

func TestDefaultsAreValidAndDescending(t *testing.T) {
	for i, v := range Defaults {
		require.True(t, IsValid(v), v)
		if i == 0 {
			continue
		}
		c, err := Compare(Defaults[i-1], v)
		require.NoError(t, err)
		assert.Equal(t, 1, c, "%s should be newer than %s", Defaults[i-1], v)
	}
	assert.Equal(t, "0.16.0", Defaults[len(Defaults)-1])
}

func TestParseBranchOverrides(t *testing.T) {
	got, err := ParseBranchOverrides("0.42.0=release/0.42.0, 1.0.0=main")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"0.42.0": "release/0.42.0",
		"1.0.0":  "main",
	}, got)

	got, err = ParseBranchOverrides("")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"0.42.0", "=main", "0.42.0="} {
		_, err := ParseBranchOverrides(bad)
		assert.Error(t, err, bad)
	}
}

func TestContains(t *testing.T) {
	versions := []string{"0.40.0", "v0.41.0"}
	assert.True(t, Contains(versions, "0.40.0"))
	assert.True(t, Contains(versions, "v0.40.0"))
	assert.True(t, Contains(versions, "0.41.0"))
	assert.False(t, Contains(versions, "0.39.0"))
	assert.False(t, Contains(versions, "garbage"))
}
