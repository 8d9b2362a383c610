// Package logger provides the process-wide zap logger used by every bridge component.
//
// Init is called once by the binary; library code asks for a component logger with
// Named and attaches call-scoped loggers to a context with ToContext / From.
//
//	logger.Init(logger.Config{Env: os.Getenv("LOG_ENV"), Level: os.Getenv("LOG_LEVEL")})
//	defer logger.Sync()
//
//	log := logger.Named("health")
//	log.Info("backend became unhealthy", logger.Backend(base))
package logger
