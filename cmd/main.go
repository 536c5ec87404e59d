package main

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/lib/pq"
	"github.com/spf13/viper"

	"quickbite/chat-service/internal/api"
	"quickbite/chat-service/internal/realtime"
	"quickbite/chat-service/internal/repository"
	"quickbite/chat-service/internal/service"

	"github.com/sirupsen/logrus"
)

func main() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("Failed to read config file: %v", err)
	}

	logger := logrus.New()
	logLevel := viper.GetString("logging.level")
	logFormat := viper.GetString("logging.format")

	switch logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if logFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	dbHost := viper.GetString("database.host")
	dbPort := viper.GetInt("database.port")
	dbUser := viper.GetString("database.user")
	dbPassword := viper.GetString("database.password")
	dbName := viper.GetString("database.dbname")
	sslmode := viper.GetString("database.sslmode")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == 0 {
		dbPort = 5432
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "quickbite"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	logger.Info("Connected to PostgreSQL database")

	chatRepo := repository.NewChatRepository(db)
	if err := chatRepo.InitializeTables(); err != nil {
		logger.Fatalf("Failed to initialize database tables: %v", err)
	}

	feed, err := realtime.NewPostgresFeed(dsn, logger)
	if err != nil {
		logger.Fatalf("Failed to start realtime listener: %v", err)
	}
	defer feed.Close()

	chatService := service.NewChatService(chatRepo, logger)

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}
	serverKey := viper.GetString("auth.server_key")
	if serverKey == "" {
		logger.Fatal("auth.server_key is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	chatHandler := api.NewChatHandler(chatService, logger)
	wsHandler := api.NewWSHandler(chatService, feed, jwtSecret, logger)
	api.Register(app, chatHandler, wsHandler, jwtSecret, serverKey)

	port := viper.GetString("server.port")
	if port == "" {
		port = "8085"
	}

	host := viper.GetString("server.host")
	if host == "" {
		host = "0.0.0.0"
	}

	address := net.JoinHostPort(host, port)

	go func() {
		logger.Infof("Starting HTTP server on %s", address)
		if err := app.Listen(address); err != nil {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down HTTP server...")

	shutdownTimeout := viper.GetDuration("server.shutdown_timeout")
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Infof("HTTP server shutdown: %v", err)
	} else {
		logger.Info("HTTP server exited gracefully")
	}

	if err := feed.Close(); err != nil {
		logger.Infof("Realtime listener shutdown: %v", err)
	}

	logger.Info("Server exited")
}
