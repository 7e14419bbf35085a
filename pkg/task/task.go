// Package task implements a trivial cooperative round-robin scheduler:
// each registered Task is ticked in turn until it reports it is
// finished, with no priorities, no preemption, and no goroutines.
package task

// Task is one unit of cooperative work. Tick does a small bounded
// amount of work and returns false once the task has nothing further
// to do.
type Task interface {
	Tick() bool
}

// Func adapts a plain function to the Task interface.
type Func func() bool

func (f Func) Tick() bool { return f() }

// Runner holds a set of tasks and ticks them round-robin, dropping
// each one as soon as it reports finished. A Runner with no tasks is
// immediately idle.
type Runner struct {
	tasks []Task
}

// NewRunner builds a Runner over the given initial tasks.
func NewRunner(tasks ...Task) *Runner {
	return &Runner{tasks: append([]Task(nil), tasks...)}
}

// Add registers another task to be ticked alongside the existing ones.
func (r *Runner) Add(t Task) {
	r.tasks = append(r.tasks, t)
}

// Len reports how many tasks are still running.
func (r *Runner) Len() int { return len(r.tasks) }

// TickAll ticks every remaining task once, in registration order,
// removing any that report finished. It returns the number of tasks
// still running after this pass.
func (r *Runner) TickAll() int {
	i := 0
	for i < len(r.tasks) {
		if r.tasks[i].Tick() {
			i++
			continue
		}
		r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
	}
	return len(r.tasks)
}

// Run calls TickAll until every task has finished.
func (r *Runner) Run() {
	for r.TickAll() > 0 {
	}
}
