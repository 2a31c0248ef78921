package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetFilterDeniedTakesPrecedence(t *testing.T) {
	tf, err := NewTargetFilter(TargetSettings{
		AllowedPatterns: []string{"*"},
		DeniedPatterns:  []string{"*crypto*", "spam_*"},
	})
	require.NoError(t, err)

	assert.True(t, tf.Allows("https://x.com/gopher/status/1", "gopher"))
	assert.False(t, tf.Allows("https://x.com/cryptobro/status/2", "cryptobro"))
	assert.False(t, tf.Allows("https://x.com/someone/status/3", "spam_account"))
}

func TestTargetFilterEmptyAllowListAllowsAll(t *testing.T) {
	tf, err := NewTargetFilter(TargetSettings{})
	require.NoError(t, err)

	assert.True(t, tf.Allows("https://x.com/anyone/status/1", "anyone"))
}

func TestTargetFilterAllowListRestricts(t *testing.T) {
	tf, err := NewTargetFilter(TargetSettings{
		AllowedPatterns: []string{"https://x.com/golang*", "rob*"},
	})
	require.NoError(t, err)

	assert.True(t, tf.Allows("https://x.com/golang/status/1", "golang"))
	assert.True(t, tf.Allows("https://x.com/other/status/2", "robpike"), "author match suffices")
	assert.False(t, tf.Allows("https://x.com/other/status/3", "someone"))
}

func TestTargetFilterStripsHandlePrefix(t *testing.T) {
	tf, err := NewTargetFilter(TargetSettings{
		DeniedPatterns: []string{"blocked_user"},
	})
	require.NoError(t, err)

	assert.False(t, tf.Allows("https://x.com/blocked_user/status/1", "@blocked_user"))
}

func TestTargetFilterInvalidPattern(t *testing.T) {
	_, err := NewTargetFilter(TargetSettings{AllowedPatterns: []string{"[bad"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid allowed target pattern")
}
