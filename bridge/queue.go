package bridge

// PostQueue holds outbound control messages until the next successful send.
// A key posted twice before a send keeps its latest value and its first
// position.
type PostQueue struct {
	order     []string
	values    map[string]string
	delivered uint64
}

func NewPostQueue() *PostQueue {
	return &PostQueue{values: make(map[string]string)}
}

func (q *PostQueue) Push(key, value string) {
	if _, ok := q.values[key]; !ok {
		q.order = append(q.order, key)
	}
	q.values[key] = value
}

func (q *PostQueue) Len() int {
	return len(q.order)
}

// Keys returns the queued keys in the order they were first posted.
func (q *PostQueue) Keys() []string {
	return append([]string(nil), q.order...)
}

// Delivered counts posts drained after successful sends.
func (q *PostQueue) Delivered() uint64 {
	return q.delivered
}

// pending returns a copy of the queued posts, nil when nothing is queued.
func (q *PostQueue) pending() map[string]string {
	if q.Len() == 0 {
		return nil
	}
	out := make(map[string]string, len(q.values))
	for k, v := range q.values {
		out[k] = v
	}
	return out
}

func (q *PostQueue) drain() []string {
	keys := q.order
	q.delivered += uint64(len(keys))
	q.order = nil
	q.values = make(map[string]string)
	return keys
}
