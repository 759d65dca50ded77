package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/pkg/logger"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
	gitTag    string
)

var (
	debugFlag = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "Enable debug logging",
		EnvVars: []string{"DEBUG"},
	}
	emailFlag = &cli.StringFlag{
		Name:     "email",
		Usage:    "Account email",
		Required: true,
	}
	passwordFlag = &cli.StringFlag{
		Name:     "password",
		Usage:    "Initial password",
		EnvVars:  []string{"BOOTSTRAP_PASSWORD"},
		Required: true,
	}
	firstNameFlag = &cli.StringFlag{
		Name:  "first-name",
		Value: "Portal",
	}
	lastNameFlag = &cli.StringFlag{
		Name:  "last-name",
		Value: "Administrator",
	}
	roleFlag = &cli.StringFlag{
		Name:  "role",
		Usage: "One of " + roleNames(),
		Value: "super_admin",
	}
)

func init() {
	app = cli.NewApp()
	app.Name = "clinical"
	app.Usage = "clinical portal identity service and event consumers"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name:   "auth",
			Usage:  "Serve the authentication API",
			Action: runAuth,
		},
		{
			Name:   "user-sync",
			Usage:  "Consume user events into the local user projection",
			Action: runUserSync,
		},
		{
			Name:   "audit-sink",
			Usage:  "Consume audit events into the audit log",
			Action: runAuditSink,
		},
		{
			Name:   "create-user",
			Usage:  "Create an account directly, e.g. the first super admin",
			Flags:  []cli.Flag{emailFlag, passwordFlag, firstNameFlag, lastNameFlag, roleFlag},
			Action: runCreateUser,
		},
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(version())
				return nil
			},
		},
	}
}

func version() string {
	v := gitTag
	if v == "" {
		v = "dev"
	}
	if gitCommit != "" {
		v += "-" + gitCommit
	}
	if gitDate != "" {
		v += " (" + gitDate + ")"
	}
	return v
}

func roleNames() string {
	roles := domain.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log := logger.Get()
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
