package controller

import "context"

// Task is the pending result of a controller action.
type Task struct {
	done chan struct{}
	view View
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func completedTask(view View, err error) *Task {
	t := newTask()
	t.finish(view, err)
	return t
}

func (t *Task) finish(view View, err error) {
	t.view = view
	t.err = err
	close(t.done)
}

// Done is closed when the action has completed.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the action completes and returns the view it produced along with the
// action's error, if any. If ctx ends first it returns ctx.Err().
func (t *Task) Wait(ctx context.Context) (View, error) {
	select {
	case <-t.done:
		return t.view, t.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
