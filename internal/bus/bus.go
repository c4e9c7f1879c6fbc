// Package bus provides in-process dispatch for commands, queries and events.
//
// Commands and queries are routed to exactly one handler, chosen by name.
// Events fan out to any number of subscribers.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNoHandler        = errors.New("bus: no handler registered")
	ErrDuplicateHandler = errors.New("bus: handler already registered")
	ErrUnexpectedType   = errors.New("bus: unexpected message type")
)

type Command interface {
	CommandName() string
}

type Query interface {
	QueryName() string
}

type CommandHandler func(ctx context.Context, cmd Command) (any, error)

type QueryHandler func(ctx context.Context, q Query) (any, error)

// registry maps a message name to its single handler.
type registry[H any] struct {
	mu       sync.RWMutex
	handlers map[string]H
}

func (r *registry[H]) register(name string, h H) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]H)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = h
	return nil
}

func (r *registry[H]) lookup(name string) (H, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return h, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	return h, nil
}

func (r *registry[H]) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

type CommandBus struct {
	reg registry[CommandHandler]
}

func NewCommandBus() *CommandBus {
	return &CommandBus{}
}

func (b *CommandBus) Register(name string, h CommandHandler) error {
	return b.reg.register(name, h)
}

func (b *CommandBus) Handles(name string) bool {
	return b.reg.has(name)
}

// Dispatch runs the command's handler synchronously.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) (any, error) {
	h, err := b.reg.lookup(cmd.CommandName())
	if err != nil {
		return nil, err
	}
	return h(ctx, cmd)
}

type QueryBus struct {
	reg registry[QueryHandler]
}

func NewQueryBus() *QueryBus {
	return &QueryBus{}
}

func (b *QueryBus) Register(name string, h QueryHandler) error {
	return b.reg.register(name, h)
}

func (b *QueryBus) Handles(name string) bool {
	return b.reg.has(name)
}

func (b *QueryBus) Dispatch(ctx context.Context, q Query) (any, error) {
	h, err := b.reg.lookup(q.QueryName())
	if err != nil {
		return nil, err
	}
	return h(ctx, q)
}

// HandleCommand registers a typed handler for command type C. C's name is
// taken from its zero value, so C should be a struct type, not a pointer.
func HandleCommand[C Command, R any](b *CommandBus, h func(ctx context.Context, cmd C) (R, error)) error {
	var zero C
	return b.Register(zero.CommandName(), func(ctx context.Context, cmd Command) (any, error) {
		c, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrUnexpectedType, cmd)
		}
		return h(ctx, c)
	})
}

// Send dispatches cmd and asserts the handler's result to R.
func Send[R any](ctx context.Context, b *CommandBus, cmd Command) (R, error) {
	var zero R
	res, err := b.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	return as[R](res)
}

// HandleQuery registers a typed handler for query type Q.
func HandleQuery[Q Query, R any](b *QueryBus, h func(ctx context.Context, q Q) (R, error)) error {
	var zero Q
	return b.Register(zero.QueryName(), func(ctx context.Context, q Query) (any, error) {
		typed, ok := q.(Q)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrUnexpectedType, q)
		}
		return h(ctx, typed)
	})
}

// Ask dispatches q and asserts the handler's result to R.
func Ask[R any](ctx context.Context, b *QueryBus, q Query) (R, error) {
	var zero R
	res, err := b.Dispatch(ctx, q)
	if err != nil {
		return zero, err
	}
	return as[R](res)
}

func as[R any](res any) (R, error) {
	var zero R
	if res == nil {
		return zero, nil
	}
	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("%w: result %T", ErrUnexpectedType, res)
	}
	return r, nil
}
