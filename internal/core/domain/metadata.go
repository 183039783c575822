package domain

// TaskMeta is the descriptive data shown next to a task. It is not stored on
// chain; until a metadata backend exists it is derived from the task id.
type TaskMeta struct {
	Type      string
	HowToEarn string
}

var taskTypes = []TaskMeta{
	{
		Type:      "Follow account",
		HowToEarn: "Follow the creator account in the Farcaster frame, then tap Verify.",
	},
	{
		Type:      "Boost cast",
		HowToEarn: "Like and recast the target cast, then tap Verify in the frame.",
	},
}

func MetaForTask(id uint64) TaskMeta {
	return taskTypes[id%uint64(len(taskTypes))]
}
