package eventsink

import "go.uber.org/zap"

// ZapEventSink logs every event at a level appropriate to its kind,
// mirroring the teacher's ginLogger middleware conventions (structured
// fields, no string formatting in the message).
type ZapEventSink struct {
	logger *zap.Logger
}

func NewZapEventSink(logger *zap.Logger) *ZapEventSink {
	return &ZapEventSink{logger: logger.With(zap.String("component", "eventsink"))}
}

func (s *ZapEventSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("request_id", e.RequestID),
		zap.String("client_id", e.ClientID),
		zap.String("model", e.Model),
		zap.String("language", e.Language),
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	for k, v := range e.Attrs {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Kind {
	case KindRejectedBusy, KindPromptBlocked, KindResponseBlocked, KindBackendError:
		s.logger.Warn("gateway event", fields...)
	default:
		s.logger.Info("gateway event", fields...)
	}
}
