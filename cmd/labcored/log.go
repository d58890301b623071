package main

import (
	"github.com/echa/config"
	logpkg "github.com/echa/log"

	"labcore/internal/adapters/api"
	"labcore/internal/adapters/exports"
	"labcore/internal/core"
)

var (
	log     = logpkg.NewLogger("MAIN") // main program
	coreLog = logpkg.NewLogger("CORE") // service + storage
	srvrLog = logpkg.NewLogger("API ") // api server
	expLog  = logpkg.NewLogger("EXPT") // export worker
)

func init() {
	config.SetDefault("log.backend", "stdout")
	config.SetDefault("log.flags", "date,time,micro,utc")

	core.UseLogger(coreLog)
	api.UseLogger(srvrLog)
	exports.UseLogger(expLog)
}

func initLogging() {
	cfg := logpkg.NewConfig()
	cfg.Level = logpkg.ParseLevel(config.GetString("log.level"))
	cfg.Flags = logpkg.ParseFlags(config.GetString("log.flags"))
	cfg.Backend = config.GetString("log.backend")
	cfg.Filename = config.GetString("log.filename")
	logpkg.Init(cfg)

	log = logpkg.NewLogger("MAIN")
	coreLog = logpkg.NewLogger("CORE")
	srvrLog = logpkg.NewLogger("API ")
	expLog = logpkg.NewLogger("EXPT")

	switch {
	case vdebug:
		setLogLevels(logpkg.LevelDebug)
	case verbose:
		setLogLevels(logpkg.LevelInfo)
	}

	core.UseLogger(coreLog)
	api.UseLogger(srvrLog)
	exports.UseLogger(expLog)
}

func setLogLevels(level logpkg.Level) {
	for _, l := range []logpkg.Logger{log, coreLog, srvrLog, expLog} {
		l.SetLevel(level)
	}
}
