package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/bestk/zeeho-widgets/cmd/zeeho-widget/app/options"
	"github.com/bestk/zeeho-widgets/internal/telemetry/model"
	"github.com/bestk/zeeho-widgets/pkg/app"
	"github.com/bestk/zeeho-widgets/pkg/log"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func newShowCommand(opts *options.WidgetOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Fetch the vehicle once and print its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			log.Init(opts.Log)
			defer log.Sync()

			cfg, err := opts.Config()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout(opts))
			defer cancel()

			v, err := cfg.FetchOnce(ctx)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), vehicleTable(v))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table or json.")
	return cmd
}

func newVehiclesCommand(opts *options.WidgetOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List the vehicles bound to the token",
		Long:  "List the vehicles bound to the token. The VIN column is the value to use as the vehicle id.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			log.Init(opts.Log)
			defer log.Sync()

			cfg, err := opts.Config()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout(opts))
			defer cancel()

			vehicles, err := cfg.ListVehicles(ctx)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), vehicles)
			}
			fmt.Fprintln(cmd.OutOrStdout(), vehicleListTable(vehicles))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table or json.")
	return cmd
}

func newConfigureCommand(opts *options.WidgetOptions) *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Check the token and vehicle id against the API and save them",
		Long: `Check the token and vehicle id with a live request, then save token,
vehicle id and update interval to the config file in the desktop widget's
format. Other keys already in the file are kept.`,
		Example: `  zeeho-widget configure --zeeho.token <token> --zeeho.vehicle-id <vin> --zeeho.update-interval 5m`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Init(opts.Log)
			defer log.Sync()

			cfg, err := opts.Config()
			if err != nil {
				return err
			}

			tc := cfg.ZeehoOptions.ToConfig()
			if err := tc.Validate(); err != nil {
				return err
			}

			if !skipCheck {
				ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout(opts))
				defer cancel()

				v, err := cfg.FetchOnce(ctx)
				if err != nil {
					return fmt.Errorf("configuration check failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %s\n", displayName(v))
			}

			path := app.ConfigFileUsed()
			if path == "" {
				path = app.ExpandHome(defaultConfigFile)
			}

			if err := saveLegacyConfig(path, tc.Token, tc.VehicleID, tc.UpdateInterval.Minutes()); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Save without contacting the API.")
	return cmd
}

// saveLegacyConfig writes the desktop widget's flat keys into path, keeping
// any other keys present. updateInterval is stored in minutes.
func saveLegacyConfig(path, token, vehicleID string, intervalMinutes float64) error {
	doc := map[string]any{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%s is not a JSON object: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	doc["token"] = token
	doc["vehicleId"] = vehicleID
	doc["updateInterval"] = intervalMinutes

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o600)
}

func validateOutput(output string) error {
	switch output {
	case outputTable, outputJSON:
		return nil
	}
	return fmt.Errorf("unsupported output format %q, use %s or %s", output, outputTable, outputJSON)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func vehicleTable(v *model.VehicleData) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true

	table.AddRow("FIELD", "VALUE")
	table.AddRow("Name", displayName(v))
	table.AddRow("VIN", orDash(v.VinNo))
	table.AddRow("Type", orDash(v.VehicleTypeName))
	table.AddRow("Battery", withUnit(v.Bmssoc, "%"))
	table.AddRow("Range", withUnit(v.HmiRidableMile, "km"))
	table.AddRow("Total distance", withUnit(v.TotalRideMile, "km"))
	table.AddRow("Charging", orDash(v.ChargeState))
	table.AddRow("Location", location(v.Location))
	if v.Location != nil && v.Location.LocationTime != "" {
		table.AddRow("Located at", v.Location.LocationTime)
	}
	if v.Decrypted != nil {
		status := string(v.Decrypted.Status)
		if v.Decrypted.Reason != "" {
			status += " (" + v.Decrypted.Reason + ")"
		}
		table.AddRow("Encrypted field", status)
	}
	if n := len(v.IotProperties); n > 0 {
		table.AddRow("IoT properties", strconv.Itoa(n))
	}
	return table
}

func vehicleListTable(vehicles []*model.VehicleData) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true

	table.AddRow("ID", "VIN", "NAME", "TYPE", "BATTERY", "RANGE", "LOCATION")
	for _, v := range vehicles {
		table.AddRow(
			orDash(v.DeviceName),
			orDash(v.VinNo),
			orDash(v.VehicleName),
			orDash(v.VehicleTypeName),
			withUnit(v.Bmssoc, "%"),
			withUnit(v.HmiRidableMile, "km"),
			location(v.Location),
		)
	}
	return table
}

func displayName(v *model.VehicleData) string {
	switch {
	case v.VehicleName != "":
		return v.VehicleName
	case v.DeviceName != "":
		return v.DeviceName
	}
	return orDash(v.VinNo)
}

func location(l *model.Location) string {
	if !l.HasFix() {
		return "-"
	}
	if l.Address != "" {
		return l.Address
	}
	return fmt.Sprintf("%.6f, %.6f", l.Latitude, l.Longitude)
}

func withUnit(value, unit string) string {
	if value == "" {
		return "-"
	}
	return value + " " + unit
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
