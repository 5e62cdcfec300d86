package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nickyhof/CommitStore"
	"github.com/nickyhof/CommitStore/core"
	"github.com/nickyhof/CommitStore/ps"
	"github.com/sirupsen/logrus"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	port := flag.Int("port", 7474, "TCP port to listen on")
	baseDir := flag.String("baseDir", "", "Repository directory (memory if empty)")
	tlsCert := flag.String("tlsCert", "", "TLS certificate file")
	tlsKey := flag.String("tlsKey", "", "TLS key file")
	jwtSecret := flag.String("jwtSecret", os.Getenv("COMMITSTORE_JWT_SECRET"), "Shared JWT secret; enables authentication when set")
	jwtIssuer := flag.String("jwtIssuer", "", "Expected JWT issuer")
	jwtAudience := flag.String("jwtAudience", "", "Expected JWT audience")
	logLevel := flag.String("logLevel", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("logFormat", "text", "Log format (text, json)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CommitStore Server v%s\n", Version)
		return
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		logrus.Fatalf("Invalid log configuration: %v", err)
	}
	ps.SetLogger(logger.WithField("component", "ps"))

	identity := core.Identity{
		Name:  "CommitStore Server",
		Email: "server@commitstore.local",
	}

	persistence, err := openPersistence(logger, *baseDir, identity)
	if err != nil {
		logger.Fatalf("Failed to initialize persistence: %v", err)
	}
	instance := CommitStore.Open(persistence)

	var server *Server
	if *jwtSecret != "" {
		authConfig := &AuthConfig{
			Enabled:   true,
			JWTSecret: *jwtSecret,
			Issuer:    *jwtIssuer,
			Audience:  *jwtAudience,
		}
		if err := authConfig.Validate(); err != nil {
			logger.Fatalf("Invalid auth configuration: %v", err)
		}
		server = NewServerWithAuth(instance, authConfig)
	} else {
		server = NewServer(instance, identity)
	}
	server.SetLogger(logger.WithField("component", "server"))

	addr := fmt.Sprintf(":%d", *port)
	if *tlsCert != "" || *tlsKey != "" {
		err = server.StartTLS(addr, *tlsCert, *tlsKey)
	} else {
		err = server.Start(addr)
	}
	if err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}

	fmt.Printf("CommitStore Server v%s listening on port %d\n", Version, *port)
	fmt.Println("Send JSON requests (one per line), 'quit' to disconnect")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	server.Stop()
	logger.Info("Server stopped")
}

// openPersistence opens the repository at baseDir, creating it with an
// initial commit when needed. An empty baseDir keeps everything in memory.
func openPersistence(logger logrus.FieldLogger, baseDir string, identity core.Identity) (*ps.Persistence, error) {
	if baseDir == "" {
		logger.Info("Using memory persistence")
		return ps.CreateEmptyRepo("", core.OptionsFor(identity, "Initial commit"))
	}

	logger.WithField("baseDir", baseDir).Info("Using file persistence")
	persistence, err := ps.OpenRepo(baseDir)
	if err == nil {
		return persistence, nil
	}
	if !errors.Is(err, ps.ErrRepoNotFound) {
		return nil, err
	}
	return ps.CreateEmptyRepo(baseDir, core.OptionsFor(identity, "Initial commit"))
}

// newLogger builds the process logger from the -logLevel and -logFormat flags
func newLogger(levelName, format string) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
	return logger, nil
}
