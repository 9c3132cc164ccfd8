package cli

import (
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mtune/internal/output"
)

// outputFlags are the --format and --flatten flags of a listing command.
type outputFlags struct {
	format  string
	flatten bool
}

func (o *outputFlags) register(cmd *cobra.Command, def output.Format) {
	cmd.Flags().StringVarP(&o.format, "format", "f", string(def), "Output format: table, json, yaml or value")
	cmd.Flags().BoolVar(&o.flatten, "flatten", false, "Flatten nested columns such as params and user_attrs")
}

func (o *outputFlags) printer() (output.Printer, error) {
	f, err := output.ParseFormat(o.format)
	if err != nil {
		return output.Printer{}, err
	}
	return output.Printer{Format: f, Flatten: o.flatten}, nil
}
