// internal/commands/show_config.go
package examrag

import (
	"fmt"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/examrag/internal/appconfig"
)

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file is loaded properly and overridden by flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg := GetConfig()
		if cfg == nil {
			d := appconfig.Default()
			cfg = &d
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		asYAML, _ := cmd.Flags().GetBool("yaml")
		dump, _ := cmd.Flags().GetBool("dump")
		switch {
		case asJSON:
			data, err := appconfig.MarshalJSON(*cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		case asYAML:
			data, err := appconfig.MarshalYAML(*cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(out, string(data))
		case dump:
			redacted := *cfg
			redacted.APIKey = ""
			if _, err := pp.Fprintln(out, redacted); err != nil {
				return err
			}
		default:
			appconfig.ShowConfig(out, viper.ConfigFileUsed(), cfg)
		}
		return nil
	},
}

func init() {
	showConfigCmd.Flags().Bool("json", false, "print the merged configuration as JSON")
	showConfigCmd.Flags().Bool("yaml", false, "print the merged configuration as YAML")
	showConfigCmd.Flags().Bool("dump", false, "pretty-print the configuration struct")
	showCmd.AddCommand(showConfigCmd)
}
