package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Harshitk-cp/iotpilot/internal/app"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/spf13/cobra"
)

const (
	demoCustomer = "Demo Customer"
	demoAdmin    = "admin@demo.local"
)

var demoDevices = []service.RegisterDeviceInput{
	{Name: "demo-gateway", IPAddress: "192.168.1.50", Location: "Lab rack 1", SSHUsername: "pi"},
	{Name: "demo-sensor-01", IPAddress: "192.168.1.51", Location: "Greenhouse", SSHUsername: "pi"},
}

func newSeedCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo customer with an admin and a few devices",
		Long: `Creates the demo customer, an ADMIN account and two devices. Running it
again skips anything that already exists. Device API keys are printed once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				return seed(cmd.Context(), c, password, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&password, "admin-password", "changeme123", "password for "+demoAdmin)
	return cmd
}

func seed(ctx context.Context, c *app.Container, password string, out io.Writer) error {
	cust, err := findOrCreateCustomer(ctx, c, demoCustomer)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "customer: %s (%s)\n", cust.Name, cust.ID)

	_, err = bus.Send[*domain.User](ctx, c.Commands, service.CreateUser{
		Actor:      operator,
		CustomerID: cust.ID,
		Input:      service.CreateUserInput{Email: demoAdmin, Name: "Demo Admin", Password: password, Role: domain.RoleAdmin},
	})
	switch {
	case errors.Is(err, service.ErrUserConflict):
		fmt.Fprintf(out, "admin: %s already exists\n", demoAdmin)
	case err != nil:
		return fmt.Errorf("create admin: %w", err)
	default:
		fmt.Fprintf(out, "admin: %s\n", demoAdmin)
	}

	for _, in := range demoDevices {
		rd, err := bus.Send[*service.RegisteredDevice](ctx, c.Commands, service.RegisterDevice{Actor: operator, CustomerID: cust.ID, Input: in})
		if errors.Is(err, service.ErrDeviceConflict) {
			fmt.Fprintf(out, "device: %s already exists\n", in.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("register %s: %w", in.Name, err)
		}
		fmt.Fprintf(out, "device: %s api key %s\n", rd.Device.Name, rd.APIKey)
	}
	return nil
}

func findOrCreateCustomer(ctx context.Context, c *app.Container, name string) (*domain.Customer, error) {
	cust, err := bus.Send[*domain.Customer](ctx, c.Commands, service.CreateCustomer{Actor: operator, Name: name})
	if !errors.Is(err, service.ErrCustomerConflict) {
		return cust, err
	}
	all, err := bus.Ask[[]domain.Customer](ctx, c.Queries, service.ListCustomers{Actor: operator})
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("customer %q conflicts with an existing slug", name)
}
