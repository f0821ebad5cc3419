package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/blog"
	"github.com/trezcool/shule/core/message"
	"github.com/trezcool/shule/core/task"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	pushsvc "github.com/trezcool/shule/services/push"
	mongodb "github.com/trezcool/shule/storage/database/mongo"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Client().Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect from database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	registry := pushsvc.NewRegistry(logger)

	usrSvc := user.NewService(mongodb.NewUserRepository(db), mailSvc, conf)
	taskSvc := task.NewService(mongodb.NewTaskRepository(db), usrSvc, mailSvc)
	msgSvc := message.NewService(mongodb.NewMessageRepository(db), usrSvc, mailSvc, registry)
	blogSvc := blog.NewService(mongodb.NewBlogRepository(db), usrSvc, mailSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Addr(), shutdown, &echoapi.Deps{
		Conf:     conf,
		Logger:   logger,
		UserSvc:  usrSvc,
		TaskSvc:  taskSvc,
		MsgSvc:   msgSvc,
		BlogSvc:  blogSvc,
		Registry: registry,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		registry.Shutdown()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*mongo.Database, error) {
	ctx := context.Background()
	db, err := mongodb.Open(ctx, conf.Database)
	if err != nil {
		return nil, err
	}
	if err = mongodb.EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}
