package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:       "mode [zappy|lojaky]",
	Short:     "Show or switch the product being prospected",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"zappy", "lojaky"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := bootstrap(ctx, bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if len(args) == 0 {
			rc, err := a.settings.LoadRuntimeConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Println(rc.Mode)
			return nil
		}

		rc, err := a.settings.SetMode(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("active mode: %s\n", rc.Mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modeCmd)
}
