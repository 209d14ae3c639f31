package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"secureapi/internal/auth"
	"secureapi/internal/domain"
	"secureapi/internal/service"
)

const userCommandTimeout = 30 * time.Second

// NewUserCmd creates the user management subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

type userCreateOptions struct {
	username string
	password string
	role     string
}

func newUserCreateCmd() *cobra.Command {
	opts := &userCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with the given role",
		Long: `Creates a user directly in the identity store. This is the only way
to create administrators, since self-registration always yields regular users.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.username, "username", "", "username")
	cmd.Flags().StringVar(&opts.password, "password", "", "password")
	cmd.Flags().StringVar(&opts.role, "role", string(domain.RoleUser), "role (admin or user)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *userCreateOptions) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), userCommandTimeout)
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	codec, err := newTokenCodec(cfg)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(st.users, auth.NewBcryptHasher(cfg.Auth.BcryptCost), codec, service.AuthOptions{
		StoreTimeout: cfg.StoreTimeout(),
		Logger:       logrus.NewEntry(logger),
	})

	user, err := authService.Register(ctx, opts.username, opts.password, domain.Role(opts.role))
	if err != nil {
		return err
	}

	cmd.Printf("created %s with role %s\n", user.Username, user.Role)
	return nil
}
