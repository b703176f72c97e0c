package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/agentbundle/pkg/log"
	"github.com/dukex/agentbundle/pkg/web"
	"github.com/dukex/agentbundle/pkg/workspace"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 3000

type API struct {
	logger    *slog.Logger
	workspace *workspace.Workspace
	validate  *validator.Validate
}

func NewAPI(logger *slog.Logger, ws *workspace.Workspace) *API {
	return &API{
		logger:    logger,
		workspace: ws,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workspace, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("agentbundle API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the workspace HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing agentbundle API")

			ws, closeAll, err := newWorkspace(ctx, command, logger)
			if err != nil {
				return err
			}
			defer closeAll()

			if err := initialize(ctx, command, ws); err != nil {
				logger.WarnContext(ctx, "Provider not initialized, runs will fail until a key is configured", "error", err)
			}

			return NewAPI(logger, ws).Start(command.Int("port"))
		},
	}
}
