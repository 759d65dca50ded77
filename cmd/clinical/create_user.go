package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

const bootstrapBrokerWait = 10 * time.Second

// runCreateUser registers an account with any role, bypassing the HTTP
// role checks. The user.created event is published when the broker is up.
func runCreateUser(cliCtx *cli.Context) error {
	cfg, log := mustInit(cliCtx, "")
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatal().Err(err).Msg("invalid auth configuration")
	}
	role, err := domain.ParseRole(cliCtx.String(roleFlag.Name))
	if err != nil {
		return err
	}

	ctx := cliCtx.Context
	stack := buildAuthStack(ctx, cfg, log)
	defer stack.close()

	if !waitConnected(ctx, stack.manager, bootstrapBrokerWait) {
		log.Warn().Msg("broker unavailable, user.created will not be published")
	}

	res, err := stack.auth.Register(ctx, ports.RegisterInput{
		Email:     cliCtx.String(emailFlag.Name),
		Password:  cliCtx.String(passwordFlag.Name),
		FirstName: cliCtx.String(firstNameFlag.Name),
		LastName:  cliCtx.String(lastNameFlag.Name),
		Role:      role,
	})
	if err != nil {
		return err
	}

	log.Info().Str("user_id", res.ID).Str("email", res.Email).Str("role", string(role)).Msg("user created")
	return nil
}
