// Package injector implements a process-wide, typed registry of shared
// values so long-lived tasks can react to the appearance, disappearance,
// and replacement of dependencies (credentials, database handles, clients)
// while running, without restarting.
package injector

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ashspire/songbot/internal/broadcast"
)

// Key identifies a slot in the Injector: the static type T plus an optional
// tag. Two keys with the same type and equal tags refer to the same slot;
// different tags coexist.
type Key[T any] struct {
	tag any
}

// NewKey constructs a key for type T, optionally distinguished by tag. Tags
// must be comparable (small closed enums, string constants, and the like).
func NewKey[T any](tag any) Key[T] {
	return Key[T]{tag: tag}
}

func (k Key[T]) slotKey() slotKey {
	var zero T
	return slotKey{typ: reflect.TypeOf(&zero).Elem(), tag: k.tag}
}

type slotKey struct {
	typ reflect.Type
	tag any
}

// Handle is a cheap, cloneable read handle for a slot: Load returns the
// current value, which may be absent.
type Handle[T any] struct {
	slot *slot[T]
}

// Load returns the current value and whether one is present.
func (h Handle[T]) Load() (T, bool) {
	return h.slot.load()
}

type slot[T any] struct {
	mu      sync.RWMutex
	value   T
	present bool
	feed    *broadcast.Feed[update[T]]
}

type update[T any] struct {
	value   T
	present bool
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{feed: broadcast.NewFeed[update[T]](8)}
}

func (s *slot[T]) load() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.present
}

func (s *slot[T]) set(value T) {
	s.mu.Lock()
	s.value = value
	s.present = true
	s.mu.Unlock()
	s.feed.Publish(update[T]{value: value, present: true})
}

func (s *slot[T]) clear() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.present = false
	s.mu.Unlock()
	s.feed.Publish(update[T]{present: false})
}

// Injector is the process-wide registry. The zero value is not usable;
// construct with New.
type Injector struct {
	mu    sync.Mutex
	slots map[slotKey]any
}

// New constructs an empty Injector.
func New() *Injector {
	return &Injector{slots: make(map[slotKey]any)}
}

func slotFor[T any](inj *Injector, key Key[T]) *slot[T] {
	sk := key.slotKey()
	inj.mu.Lock()
	defer inj.mu.Unlock()
	existing, ok := inj.slots[sk]
	if ok {
		s, ok := existing.(*slot[T])
		if !ok {
			panic(fmt.Sprintf("injector: slot type mismatch for key %v", sk))
		}
		return s
	}
	s := newSlot[T]()
	inj.slots[sk] = s
	return s
}

// Update replaces the current value held at key and notifies subscribers.
func Update[T any](inj *Injector, key Key[T], value T) {
	slotFor(inj, key).set(value)
}

// Clear removes the current value held at key and notifies subscribers.
func Clear[T any](inj *Injector, key Key[T]) {
	slotFor(inj, key).clear()
}

// Var returns a cheap, cloneable read handle for key.
func Var[T any](inj *Injector, key Key[T]) Handle[T] {
	return Handle[T]{slot: slotFor(inj, key)}
}

// StreamUpdate is what Stream delivers: either a present value or absence.
type StreamUpdate[T any] struct {
	Value   T
	Present bool
}

// StreamHandle is the live half of Stream's snapshot+feed pair.
type StreamHandle[T any] interface {
	Updates() <-chan StreamUpdate[T]
	Close()
}

type streamHandle[T any] struct {
	sub broadcast.Subscription[update[T]]
	out chan StreamUpdate[T]
	done chan struct{}
}

func (h *streamHandle[T]) Updates() <-chan StreamUpdate[T] { return h.out }

func (h *streamHandle[T]) Close() {
	h.sub.Close()
	<-h.done
}

// Stream returns the current value (if any) together with a live feed of
// subsequent changes. The pair is consistent: no update published after the
// snapshot was taken is lost, because the subscription is created before
// the snapshot is read.
func Stream[T any](inj *Injector, key Key[T]) (initial StreamUpdate[T], updates StreamHandle[T]) {
	s := slotFor(inj, key)
	sub := s.feed.Subscribe()
	value, present := s.load()

	h := &streamHandle[T]{
		sub:  sub,
		out:  make(chan StreamUpdate[T], 1),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer close(h.out)
		for u := range sub.C() {
			h.out <- StreamUpdate[T]{Value: u.value, Present: u.present}
		}
	}()

	return StreamUpdate[T]{Value: value, Present: present}, h
}
