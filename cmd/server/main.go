package main

import (
	"github.com/CaptainCrouton89/Saturn-sub003/internal/server"
	"github.com/CaptainCrouton89/Saturn-sub003/internal/util"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger"
	"github.com/CaptainCrouton89/Saturn-sub003/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
