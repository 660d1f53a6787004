package granola

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Signals for granola events.
var (
	SignalProcessorCreated = capitan.NewSignal("granola.processor.created", "Processor instantiated")
	SignalDecodeStart      = capitan.NewSignal("granola.decode.start", "Decode operation beginning")
	SignalDecodeComplete   = capitan.NewSignal("granola.decode.complete", "Decode operation finished")
	SignalEncodeStart      = capitan.NewSignal("granola.encode.start", "Encode operation beginning")
	SignalEncodeComplete   = capitan.NewSignal("granola.encode.complete", "Encode operation finished")
	SignalProjectionBuilt  = capitan.NewSignal("granola.projection.built", "Projection set compiled for a type")
	SignalProjectionMissed = capitan.NewSignal("granola.projection.missed", "Projected path matched nothing")
	SignalTypeUnresolved   = capitan.NewSignal("granola.type.unresolved", "Type tag did not resolve")
)

// Keys for typed event data.
var (
	KeyContentType     = capitan.NewStringKey("content_type")
	KeyTypeName        = capitan.NewStringKey("type_name")
	KeyField           = capitan.NewStringKey("field")
	KeyPath            = capitan.NewStringKey("path")
	KeyTypeTag         = capitan.NewStringKey("type_tag")
	KeySize            = capitan.NewIntKey("size")
	KeyDuration        = capitan.NewDurationKey("duration")
	KeyError           = capitan.NewErrorKey("error")
	KeyProjectionCount = capitan.NewIntKey("projection_count")
)

func emitProcessorCreated(ctx context.Context, contentType, typeName string) {
	capitan.Emit(ctx, SignalProcessorCreated,
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
	)
}

func emitDecodeStart(ctx context.Context, contentType, typeName string) {
	capitan.Emit(ctx, SignalDecodeStart,
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
	)
}

// emitDecodeComplete emits an event when decode finishes.
func emitDecodeComplete(ctx context.Context, contentType, typeName string, size int, duration time.Duration, projections int, err error) {
	fields := []capitan.Field{
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
		KeySize.Field(size),
		KeyDuration.Field(duration),
		KeyProjectionCount.Field(projections),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalDecodeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalDecodeComplete, fields...)
	}
}

func emitEncodeStart(ctx context.Context, contentType, typeName string) {
	capitan.Emit(ctx, SignalEncodeStart,
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
	)
}

// emitEncodeComplete emits an event when encode finishes.
func emitEncodeComplete(ctx context.Context, contentType, typeName string, size int, duration time.Duration, err error) {
	fields := []capitan.Field{
		KeyContentType.Field(contentType),
		KeyTypeName.Field(typeName),
		KeySize.Field(size),
		KeyDuration.Field(duration),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalEncodeComplete, fields...)
	} else {
		capitan.Emit(ctx, SignalEncodeComplete, fields...)
	}
}

// emitProjectionBuilt emits an event when a type's projection set is compiled.
// A non-nil err means at least one path failed to compile.
func emitProjectionBuilt(ctx context.Context, typeName string, count int, err error) {
	fields := []capitan.Field{
		KeyTypeName.Field(typeName),
		KeyProjectionCount.Field(count),
	}
	if err != nil {
		fields = append(fields, KeyError.Field(err))
		capitan.Error(ctx, SignalProjectionBuilt, fields...)
	} else {
		capitan.Emit(ctx, SignalProjectionBuilt, fields...)
	}
}

func emitProjectionMissed(ctx context.Context, typeName, field, path string) {
	capitan.Emit(ctx, SignalProjectionMissed,
		KeyTypeName.Field(typeName),
		KeyField.Field(field),
		KeyPath.Field(path),
	)
}

func emitTypeUnresolved(ctx context.Context, tag string) {
	capitan.Emit(ctx, SignalTypeUnresolved,
		KeyTypeTag.Field(tag),
	)
}
