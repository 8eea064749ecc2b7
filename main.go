package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elijahnyp/lamp_controller/onem2m"
	. "github.com/elijahnyp/lamp_controller/util"
)

var rootCmd = &cobra.Command{
	Use:           "lamp_controller",
	Short:         "oneM2M smart lamp",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := BindFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := SetupConfig(); err != nil {
			return err
		}
		LogInit(Config.GetString("log_level"))
		RegisterNewConfigListener(reloadLogLevel)
		return nil
	},
	RunE: runLamp,
}

var setCmd = &cobra.Command{
	Use:   "set <on|off>",
	Short: "Post a lamp value to the CSE",
	Args:  cobra.ExactArgs(1),
	RunE:  runSet,
}

var sampleConfigCmd = &cobra.Command{
	Use:   "sample-config",
	Short: "Print a lamp_controller.yaml built from the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return WriteSampleConfig(cmd.OutOrStdout(), CurrentSampleConfig())
	},
}

func init() {
	LogInit("info")
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "configuration file")
	flags.String("log-level", "info", "trace, debug, info, warn or error")
	flags.String("log-file", "", "write logs to this file")
	flags.String("cse", "", "CSE base URL")
	rootCmd.Flags().Bool("standalone", false, "run without a broker")
	rootCmd.Flags().Bool("local-toggle", false, "allow toggling the lamp from the shell and dashboard")
	rootCmd.Flags().Bool("headless", false, "log state changes instead of drawing the lamp")
	rootCmd.Flags().Bool("discovery", false, "advertise the lamp over DNS-SD")
	rootCmd.Flags().Int("notify-port", 0, "port of the notification listener")
	rootCmd.AddCommand(setCmd, sampleConfigCmd)
}

func reloadLogLevel() {
	LogInit(Config.GetString("log_level"))
}

func runLamp(cmd *cobra.Command, args []string) error {
	app, err := NewApp(AppOptionsFromConfig())
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}

// runSet is the switch side of the demo: it posts one content instance and
// exits.
func runSet(cmd *cobra.Command, args []string) error {
	on, err := onem2m.ParseBoolLike(strings.ToLower(args[0]))
	if err != nil {
		return fmt.Errorf("lamp value %q: %w", args[0], err)
	}
	var model Model
	if err := model.BuildModel(); err != nil {
		return err
	}
	client := onem2m.NewClient(ClientConfigFromConfig())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.PostContentInstance(ctx, model.AE, model.Container, on); err != nil {
		return err
	}
	Logger.Info().Msgf("posted %v to %s/%s", on, client.BaseURL(), model.ContainerPath())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
