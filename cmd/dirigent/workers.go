package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// workersCmd prints the declared worker fleet and target surface.
var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List declared workers and targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := loadDefinitions(workersPath)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("Workers (%d)", len(defs.Workers))))
		for _, w := range defs.Workers {
			fmt.Printf("  %s  tier<=%d\n", nameStyle.Render(w.Profile.ID), w.Profile.MaxTier)
			fmt.Printf("    categories:   %s\n", strings.Join(w.Profile.Categories, ", "))
			fmt.Printf("    capabilities: %s\n", strings.Join(w.Profile.Capabilities, ", "))
			if len(w.Profile.Specializations) > 0 {
				fmt.Printf("    specialized:  %s\n", strings.Join(w.Profile.Specializations, ", "))
			}
			if len(w.Profile.Prohibitions) > 0 {
				fmt.Printf("    prohibited:   %s\n", warnStyle.Render(strings.Join(w.Profile.Prohibitions, ", ")))
			}
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("Targets (%d)", len(defs.Targets))))
		for _, t := range defs.Targets {
			var params []string
			for _, p := range t.Contract.Params {
				name := p.Name
				if p.Required {
					name += "*"
				}
				params = append(params, fmt.Sprintf("%s:%s", name, p.Kind))
			}
			fmt.Printf("  %s(%s)  [%s tier %d]\n",
				nameStyle.Render(t.Name), strings.Join(params, ", "),
				t.Requirement.Category, t.Requirement.Tier)
		}
		return nil
	},
}
