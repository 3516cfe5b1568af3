package runner

import (
	"go.uber.org/zap"

	"softtimer/core"
	"softtimer/host/config"
)

func lfdError(err error) zap.Field {
	return zap.NamedError("error", err)
}

func lfdEvent(name string) zap.Field {
	return zap.String("event", name)
}

func lfdEventID(id core.EventID) zap.Field {
	return zap.Int16("eventId", int16(id))
}

func lfdKind(kind config.Kind) zap.Field {
	return zap.String("kind", string(kind))
}

func lfdCount(count uint32) zap.Field {
	return zap.Uint32("count", count)
}

func lfdClock(clock uint32) zap.Field {
	return zap.Uint32("clock", clock)
}
