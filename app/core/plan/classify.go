package plan

// Classify splits a day's tasks into fixed-time and flexible-time groups.
// A task is fixed iff its anchor time-of-day is non-midnight; multi-day
// tasks are always flexible for the current day. Input order is preserved
// within each group.
func Classify(tasks []Task) (fixed []Task, flexible []Task) {
	for _, t := range tasks {
		if t.Fixed() {
			fixed = append(fixed, t)
		} else {
			flexible = append(flexible, t)
		}
	}
	return fixed, flexible
}
