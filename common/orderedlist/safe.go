package orderedlist

import "sync"

// Safe guards a List with a single mutex. Every method holds the lock for the
// duration of the call, so concurrent calls on the same Safe serialize.
//
// The lock is not reentrant: callbacks passed to Find, ForEach, ForEachReverse
// and Do run under the lock and must not call back into the same Safe.
// Mixing Safe methods with direct use of the List returned by Do outside of
// the callback is undefined.
type Safe[T any] struct {
	mu   sync.Mutex
	list *List[T]
}

// NewSafe creates an empty lock guarded list.
func NewSafe[T any](compare CompareFunc[T]) *Safe[T] {
	return &Safe[T]{list: New(compare)}
}

// Do runs fn with exclusive access to the underlying list. It is the way to
// compose several operations into one critical section.
func (s *Safe[T]) Do(fn func(l *List[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.list)
}

func (s *Safe[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Len()
}

func (s *Safe[T]) Front() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Front()
}

func (s *Safe[T]) Back() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Back()
}

func (s *Safe[T]) Next(h Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Next(h)
}

func (s *Safe[T]) Prev(h Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Prev(h)
}

func (s *Safe[T]) Get(h Handle) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Get(h)
}

func (s *Safe[T]) PushFront(v T) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.PushFront(v)
}

func (s *Safe[T]) PushBack(v T) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.PushBack(v)
}

func (s *Safe[T]) InsertBefore(at Handle, v T) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.InsertBefore(at, v)
}

func (s *Safe[T]) InsertAfter(at Handle, v T) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.InsertAfter(at, v)
}

func (s *Safe[T]) Remove(h Handle) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Remove(h)
}

func (s *Safe[T]) PopFront() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.PopFront()
}

func (s *Safe[T]) PopBack() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.PopBack()
}

func (s *Safe[T]) Find(match func(v T) bool) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Find(match)
}

func (s *Safe[T]) ForEach(fn func(h Handle, v T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.ForEach(fn)
}

func (s *Safe[T]) ForEachReverse(fn func(h Handle, v T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.ForEachReverse(fn)
}

func (s *Safe[T]) SortedInsert(v T) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.SortedInsert(v)
}

func (s *Safe[T]) Values() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Values()
}

func (s *Safe[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.Clear()
}

func (s *Safe[T]) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Validate()
}
