package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaypierce/moos-ivp-agent/util"
)

func FieldCommand() *cobra.Command {
	var x, y float64
	var list bool
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Show how positions map onto the discretized field",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.Field()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Resolution: %v, Cells: %d, Fingerprint: %s\n", d.Resolution(), d.SpaceSize(), util.ShortHash(d.Fingerprint()))

			if list {
				for i, p := range d.Points() {
					fmt.Fprintf(out, "%d\t(%v, %v)\n", i+1, p.X, p.Y)
				}
				return nil
			}

			cell := d.Locate(x, y)
			p, ok := d.ToDiscretePoint(x, y)
			if !ok {
				fmt.Fprintf(out, "(%v, %v) -> %s, index %d\n", x, y, cell, cell.Raw())
				return nil
			}
			fmt.Fprintf(out, "(%v, %v) -> (%v, %v), index %d\n", x, y, p.X, p.Y, cell.Raw())
			return nil
		},
	}
	cmd.Flags().Float64Var(&x, "x", 0, "NAV_X to locate")
	cmd.Flags().Float64Var(&y, "y", 0, "NAV_Y to locate")
	cmd.Flags().BoolVar(&list, "list", false, "List every in-bounds grid point with its index")
	return cmd
}
