package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{string(FlagValidateEachTick)})

	t.Run("run if enabled", func(t *testing.T) {
		var validate bool
		f.IfSet(FlagValidateEachTick, func() {
			validate = true
		})
		require.True(t, validate)

		var incremental bool
		f.IfSet(FlagIncrementalInsert, func() {
			incremental = true
		})
		require.False(t, incremental)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var validate bool
		f.IfNotSet(FlagValidateEachTick, func() {
			validate = true
		})
		require.False(t, validate)

		var snapshots bool
		f.IfNotSet(FlagDisableSnapshots, func() {
			snapshots = true
		})
		require.True(t, snapshots)
	})
}

func TestFeatureFlagNormalization(t *testing.T) {
	f := New([]string{" disable_snapshots", "", "INCREMENTAL_INSERT ", "   "})

	require.True(t, f.IsSet(FlagDisableSnapshots))
	require.True(t, f.IsSet(FlagIncrementalInsert))
	require.False(t, f.IsSet(FlagDisableQueries))
	require.Equal(t, []string{"DISABLE_SNAPSHOTS", "INCREMENTAL_INSERT"}, f.List())
}
