package scan

// queue is an unbounded task channel. Workers both consume tasks and
// produce new ones, so a bounded channel could deadlock with every
// worker blocked on a full send. A pump goroutine buffers the backlog
// in memory instead.
type queue struct {
	in  chan task
	out chan task
}

func newQueue() *queue {
	q := &queue{
		in:  make(chan task),
		out: make(chan task),
	}
	go q.pump()
	return q
}

func (q *queue) push(t task) { q.in <- t }

// closeInput stops accepting tasks. The backlog is drained to out,
// then out is closed and the workers exit their range loops.
func (q *queue) closeInput() { close(q.in) }

func (q *queue) pump() {
	var backlog []task
	for {
		var out chan task
		var next task
		if len(backlog) > 0 {
			out = q.out
			next = backlog[0]
		}
		select {
		case t, ok := <-q.in:
			if !ok {
				for _, t := range backlog {
					q.out <- t
				}
				close(q.out)
				return
			}
			backlog = append(backlog, t)
		case out <- next:
			backlog = backlog[1:]
		}
	}
}
