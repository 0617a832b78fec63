package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mediavault/mediavault/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing mediavault configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows all available configuration options with their defaults applied.
You can redirect this output to a file to create a configuration template:

  mediavault config dump > config.yaml

Configuration can be set via:
  - Config file (./configs/config.yaml, /etc/mediavault, $HOME/.mediavault)
  - Environment variables (MEDIAVAULT_DATABASE_DSN, MEDIAVAULT_STORAGE_BASE_DIR, ...)
  - The flat DB_HOST/DB_PORT/DB_NAME/DB_USER/DB_PASSWORD/PUBLIC_BASE_URL variables

Environment variables use the MEDIAVAULT_ prefix and underscores for nesting.
Example: storage.base_dir -> MEDIAVAULT_STORAGE_BASE_DIR`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations rendered human-readable.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# mediavault Configuration File")
	fmt.Println("# =============================")
	fmt.Println("#")
	fmt.Println("# All values shown below reflect the current environment with")
	fmt.Println("# defaults applied. Duration format: 30s, 5m, 1h")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
