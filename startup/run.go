// Package startup is intended as a helper package to
// run services in go routines in main
package startup

import (
	"os"

	"github.com/asbconnect/go-asbconnect/environment"
	"github.com/asbconnect/go-asbconnect/logger"
	"github.com/asbconnect/go-asbconnect/tracing"
)

type Runner func(logger.Logger) error

// Run initialises the logger and optional zipkin tracing, executes run and
// exits with a non-zero code on error.
//
// defers do not work in main() because of the os.Exit()
func Run(serviceName string, run Runner) {
	logger.New(environment.GetLogLevel())
	log := logger.Sugar.WithServiceName(serviceName)

	exitCode := func() int {
		var exitCode int

		closer := tracing.NewFromEnv(serviceName, "localhost:0", "ZIPKIN_ENDPOINT", "DISABLE_ZIPKIN")
		if closer != nil {
			defer closer.Close()
		}

		err := run(log)
		if err != nil {
			log.Infof("Error at startup: %v", err)
			exitCode = 1
		}
		return exitCode
	}()

	log.Infof("Shutting down")
	logger.OnExit()

	os.Exit(exitCode)
}
