package main

import (
	"encoding/json"
	"fmt"

	"github.com/lychee-technology/jsonadm"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and list the declared resources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		defs := config.Resource.Definitions
		if checkResource != "" {
			def, ok := config.Resource.Definition(checkResource)
			if !ok {
				return fmt.Errorf("resource %q is not configured", checkResource)
			}
			defs = []jsonadm.ResourceDefinition{def}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "store: %s\n", config.Resource.Store)
		for _, def := range defs {
			fmt.Fprintf(out, "resource: %s lists=%t types=%d tree=%t\n", def.Name, def.Lists, len(def.Types), def.Tree)
			if checkResource != "" {
				for _, attr := range def.Attributes {
					fmt.Fprintf(out, "  attribute: %s\n", attr.Code)
				}
				if def.BaseFilter != "" {
					fmt.Fprintf(out, "  base filter: %s\n", def.BaseFilter)
				}
			}
		}
		fmt.Fprintln(out, "configuration is valid")
		return nil
	},
}

var checkResource string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		config.Database.Password = ""
		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCheckCmd.Flags().StringVar(&checkResource, "resource", "", "only show the named resource, with its attributes")
	configCmd.AddCommand(configCheckCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
