package main

import (
	"fmt"

	"github.com/dastaan/dastaan/internal/credentials"
	"github.com/spf13/cobra"
)

var (
	keyStatus bool
	keyForget bool

	keyCmd = &cobra.Command{
		Use:   "key",
		Short: "Store the Gemini API key used for narration",
		Long: paragraph(fmt.Sprintf("\n%s a Gemini API key. GEMINI_API_KEY or API_KEY in the environment take precedence over the stored key.",
			keyword("Store"))),
		Example: paragraph("dastaan key\ndastaan key --status"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := credentials.NewSource("")
			if err != nil {
				return err
			}

			switch {
			case keyStatus:
				if origin := keys.Origin(); origin != "" {
					fmt.Println("Using API key from", origin)
				} else {
					fmt.Println("No API key configured. Run dastaan key to add one.")
				}
				return nil
			case keyForget:
				if err := keys.Forget(); err != nil {
					return err
				}
				fmt.Println("Removed", keys.Path())
				return nil
			}

			if err := keys.Prompt(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Wrote API key to:", keys.Path())
			return nil
		},
	}
)

func init() {
	keyCmd.Flags().BoolVar(&keyStatus, "status", false, "show where the active key comes from")
	keyCmd.Flags().BoolVar(&keyForget, "forget", false, "remove the stored key")
	keyCmd.MarkFlagsMutuallyExclusive("status", "forget")
}
