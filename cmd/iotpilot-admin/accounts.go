package main

import (
	"errors"
	"fmt"

	"github.com/Harshitk-cp/iotpilot/internal/app"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/spf13/cobra"
)

func newCreateCustomerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-customer <name>",
		Short: "Create a customer (tenant)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				cust, err := bus.Send[*domain.Customer](cmd.Context(), c.Commands, service.CreateCustomer{Actor: operator, Name: args[0]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "customer %s created (slug %s)\n", cust.ID, cust.Slug)
				return nil
			})
		},
	}
}

func newCreateSuperAdminCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "create-superadmin",
		Short: "Create a SUPERADMIN account that belongs to no customer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				u, err := c.Services.Users.CreateSuperAdmin(cmd.Context(), email, name, password)
				if errors.Is(err, service.ErrUserConflict) {
					return fmt.Errorf("%s already has an account", email)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "superadmin %s created (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password (min 8 characters)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
