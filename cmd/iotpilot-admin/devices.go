package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/Harshitk-cp/iotpilot/internal/app"
	"github.com/Harshitk-cp/iotpilot/internal/bus"
	"github.com/Harshitk-cp/iotpilot/internal/domain"
	"github.com/Harshitk-cp/iotpilot/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// inventory is the YAML layout accepted by import-devices.
type inventory struct {
	Devices []inventoryDevice `yaml:"devices"`
}

type inventoryDevice struct {
	Name        string `yaml:"name"`
	IPAddress   string `yaml:"ip_address"`
	MACAddress  string `yaml:"mac_address"`
	Description string `yaml:"description"`
	Location    string `yaml:"location"`
	SSHPort     int    `yaml:"ssh_port"`
	SSHUsername string `yaml:"ssh_username"`
}

func (d inventoryDevice) input() service.RegisterDeviceInput {
	return service.RegisterDeviceInput{
		Name:        d.Name,
		IPAddress:   d.IPAddress,
		MACAddress:  d.MACAddress,
		Description: d.Description,
		Location:    d.Location,
		SSHPort:     d.SSHPort,
		SSHUsername: d.SSHUsername,
	}
}

func parseInventory(r io.Reader) (*inventory, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var inv inventory
	if err := dec.Decode(&inv); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("inventory is empty")
		}
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if len(inv.Devices) == 0 {
		return nil, errors.New("inventory lists no devices")
	}
	seen := make(map[string]int, len(inv.Devices))
	for i, d := range inv.Devices {
		if d.Name == "" {
			return nil, fmt.Errorf("device #%d has no name", i+1)
		}
		if prev, ok := seen[d.Name]; ok {
			return nil, fmt.Errorf("device %q listed twice (#%d and #%d)", d.Name, prev+1, i+1)
		}
		seen[d.Name] = i
	}
	return &inv, nil
}

func newImportDevicesCmd() *cobra.Command {
	var customerRef string
	var skipExisting bool
	cmd := &cobra.Command{
		Use:   "import-devices <file.yaml>",
		Short: "Register every device listed in a YAML inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			inv, err := parseInventory(f)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(c *app.Container) error {
				cust, err := resolveCustomer(cmd.Context(), c, customerRef)
				if err != nil {
					return err
				}
				return importDevices(cmd.Context(), c.Commands, cust.ID, inv, skipExisting, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&customerRef, "customer", "", "customer id or slug")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip devices whose name is already registered")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func resolveCustomer(ctx context.Context, c *app.Container, ref string) (*domain.Customer, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return bus.Ask[*domain.Customer](ctx, c.Queries, service.GetCustomer{Actor: operator, CustomerID: id})
	}
	all, err := bus.Ask[[]domain.Customer](ctx, c.Queries, service.ListCustomers{Actor: operator})
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Slug == ref {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("no customer with id or slug %q", ref)
}

// importDevices registers devices in file order and stops at the first
// failure. Keys of devices already created are still printed.
func importDevices(ctx context.Context, commands *bus.CommandBus, customerID uuid.UUID, inv *inventory, skipExisting bool, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "NAME\tID\tAPI KEY")

	for _, d := range inv.Devices {
		rd, err := bus.Send[*service.RegisteredDevice](ctx, commands, service.RegisterDevice{Actor: operator, CustomerID: customerID, Input: d.input()})
		if skipExisting && errors.Is(err, service.ErrDeviceConflict) {
			fmt.Fprintf(tw, "%s\t-\t(exists)\n", d.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("register %s: %w", d.Name, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rd.Device.Name, rd.Device.ID, rd.APIKey)
	}
	return nil
}
