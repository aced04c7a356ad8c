package featureflag

type Flag string

const (
	// Reinserts each tick batch into an empty tree and rebalances it every
	// rebalance interval, instead of bulk-building a balanced tree.
	FlagIncrementalInsert Flag = "INCREMENTAL_INSERT"

	FlagValidateEachTick       Flag = "VALIDATE_EACH_TICK"
	FlagDisableSnapshots       Flag = "DISABLE_SNAPSHOTS"
	FlagDisableParallelFlatten Flag = "DISABLE_PARALLEL_FLATTEN"
	FlagDisableQueries         Flag = "DISABLE_QUERIES"
)
