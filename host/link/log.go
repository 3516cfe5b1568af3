package link

import (
	"go.uber.org/zap"

	"softtimer/core"
)

func lfdError(err error) zap.Field {
	return zap.NamedError("error", err)
}

func lfdCommand(name string) zap.Field {
	return zap.String("command", name)
}

func lfdCommandID(id uint16) zap.Field {
	return zap.Uint16("commandId", id)
}

func lfdSequence(seq uint8) zap.Field {
	return zap.Uint8("seq", seq)
}

func lfdEventID(id core.EventID) zap.Field {
	return zap.Int16("eventId", int16(id))
}

func lfdArgs(args []int32) zap.Field {
	return zap.Int32s("args", args)
}
