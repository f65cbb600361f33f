package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/Sh00ty/rendezvous/internal/discovery/inmemory"
	"github.com/Sh00ty/rendezvous/internal/discovery/nameserver"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,optional"`
	ListenAddr  string `envconfig:"NAMESERVER_LISTEN_ADDR,default=127.0.0.1:7070"`
	GrpcDebug   bool   `envconfig:"GRPC_DEBUG,optional"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	srv := grpc.NewServer()
	nameserver.RegisterNameServiceServer(srv, nameserver.NewServer(inmemory.NewRegistry()))
	if appCfg.GrpcDebug {
		reflection.Register(srv)
	}

	ls, err := net.Listen("tcp", appCfg.ListenAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind server addr")
	}
	go func() {
		log.Info().Msgf("running name server on %s", ls.Addr())
		err := srv.Serve(ls)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start serving grpc requests")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("stopping name server")
	srv.GracefulStop()
}
