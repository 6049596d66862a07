// events/handler.go
package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

// ErrInvalidHandler is returned when a handler cannot be registered.
var ErrInvalidHandler = errors.New("invalid event handler")

// HandlerFunc handles one decoded event envelope.
type HandlerFunc func(ctx context.Context, env *protocol.Envelope) error

var (
	errType      = reflect.TypeOf((*error)(nil)).Elem()
	ctxType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	envelopeType = reflect.TypeOf((*protocol.Envelope)(nil))
)

// Wrap adapts fn into a HandlerFunc. Supported signatures:
//
//	func(context.Context, *protocol.Envelope) error
//	func(*protocol.Envelope) error
//	func(context.Context, Body) error
//	func(Body) error
//
// where Body is a struct or pointer to struct the envelope body is decoded
// into. Anything else is rejected here rather than at dispatch time.
func Wrap(fn any) (HandlerFunc, error) {
	switch h := fn.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidHandler)
	case HandlerFunc:
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler", ErrInvalidHandler)
		}
		return h, nil
	case func(context.Context, *protocol.Envelope) error:
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler", ErrInvalidHandler)
		}
		return h, nil
	}

	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: handler must be a function, got %T", ErrInvalidHandler, fn)
	}
	if fv.IsNil() {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidHandler)
	}
	if ft.NumOut() != 1 || !ft.Out(0).Implements(errType) {
		return nil, fmt.Errorf("%w: handler must return exactly one error, signature: %s", ErrInvalidHandler, ft.String())
	}

	withCtx := false
	switch ft.NumIn() {
	case 1:
	case 2:
		if ft.In(0) != ctxType {
			return nil, fmt.Errorf("%w: first argument must be context.Context, signature: %s", ErrInvalidHandler, ft.String())
		}
		withCtx = true
	default:
		return nil, fmt.Errorf("%w: unsupported handler signature: %s", ErrInvalidHandler, ft.String())
	}

	argType := ft.In(ft.NumIn() - 1)
	if argType != envelopeType {
		elem := argType
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct && elem.Kind() != reflect.Map {
			return nil, fmt.Errorf("%w: body argument must be a struct, map or *protocol.Envelope, signature: %s", ErrInvalidHandler, ft.String())
		}
	}

	return func(ctx context.Context, env *protocol.Envelope) error {
		arg, err := prepareArg(env, argType)
		if err != nil {
			return err
		}
		in := []reflect.Value{arg}
		if withCtx {
			in = []reflect.Value{reflect.ValueOf(&ctx).Elem(), arg}
		}
		out := fv.Call(in)
		if errVal, ok := out[0].Interface().(error); ok {
			return errVal
		}
		return nil
	}, nil
}

// prepareArg builds the handler argument for env.
func prepareArg(env *protocol.Envelope, argType reflect.Type) (reflect.Value, error) {
	if argType == envelopeType {
		return reflect.ValueOf(env), nil
	}
	isPtr := argType.Kind() == reflect.Ptr
	target := argType
	if isPtr {
		target = argType.Elem()
	}
	val := reflect.New(target)
	if err := env.DecodeBody(val.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to decode event body into %s: %w", argType.String(), err)
	}
	if isPtr {
		return val, nil
	}
	return val.Elem(), nil
}
