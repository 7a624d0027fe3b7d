/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package zaperr implements structured errors that carry their own zap fields,
// so a handler can `slog.Errorw("...", "err", zaperr.Wrap(err, "bind failed", "kind", k))`
// and get the same nested-object logging zap gives ordinary Errorw calls.
package zaperr

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapError pairs an underlying error with structured key/value context.
type ZapError struct {
	msg string
	err error
	kv  []interface{}
}

func (ze ZapError) Error() string {
	if ze.err != nil {
		return ze.msg + ": " + ze.err.Error()
	}
	return ze.msg
}

// Unwrap lets errors.Is/As see through the wrapper.
func (ze ZapError) Unwrap() error {
	return ze.err
}

// MarshalLogObject is largely a copy of zap.SugaredLogger.sweetenFields(), an
// attempt at uber-go/zap#529. There's no good way to surface errors that come
// up during marshaling here, so invalid pairs get logged as such instead of
// being dropped.
func (ze ZapError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	var invalid invalidPairs

	enc.AddString("msg", ze.msg)
	for i := 0; i < len(ze.kv); {
		if field, ok := ze.kv[i].(zapcore.Field); ok {
			field.AddTo(enc)
			i++
			continue
		}

		if i == len(ze.kv)-1 {
			zap.Any("ignored", ze.kv[i]).AddTo(enc)
			break
		}

		key, val := ze.kv[i], ze.kv[i+1]
		if keyStr, ok := key.(string); !ok {
			if cap(invalid) == 0 {
				invalid = make(invalidPairs, 0, len(ze.kv)/2)
			}
			invalid = append(invalid, invalidPair{i, key, val})
		} else {
			zap.Any(keyStr, val).AddTo(enc)
		}

		i += 2
	}

	if len(invalid) > 0 {
		zap.Array("invalid", invalid).AddTo(enc)
	}

	return nil
}

type invalidPair struct {
	position   int
	key, value interface{}
}

func (p invalidPair) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("position", int64(p.position))
	zap.Any("key", p.key).AddTo(enc)
	zap.Any("value", p.value).AddTo(enc)
	return nil
}

type invalidPairs []invalidPair

func (ps invalidPairs) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for i := range ps {
		enc.AppendObject(ps[i])
	}
	return nil
}

// Wrap attaches a message and key/value pairs to an underlying error.
func Wrap(err error, msg string, args ...interface{}) ZapError {
	return ZapError{msg: msg, err: err, kv: args}
}

// Errorw builds a structured error with no underlying cause, for sites that
// originate an error rather than wrap one.
func Errorw(msg string, args ...interface{}) ZapError {
	return ZapError{msg: msg, kv: args}
}
