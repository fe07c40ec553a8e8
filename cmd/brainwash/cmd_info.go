package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/version"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	kindsCmd = &cobra.Command{
		Use:   "kinds",
		Short: "List the module kinds and their parameters",
		Args:  cobra.NoArgs,
		RunE:  runKinds,
	}

	presetsCmd = &cobra.Command{
		Use:   "presets",
		Short: "List the built-in and user presets",
		Args:  cobra.NoArgs,
		RunE:  runPresets,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.VersionOrHash)
		},
	}
)

func runKinds(cmd *cobra.Command, args []string) error {
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	prev := brainwash.Category(-1)
	for _, k := range brainwash.AllModuleKinds() {
		t := k.Type()
		if t.Category != prev {
			if prev >= 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s\n", title.String(t.Category.String()))
			prev = t.Category
		}
		var params []string
		for i, p := range t.Params {
			if p.Kind == brainwash.ParamEnum {
				params = append(params, fmt.Sprintf("%s=%s", p.Name, strings.Join(p.Options, "|")))
				continue
			}
			v, unit := p.Display(t.Defaults[i])
			params = append(params, fmt.Sprintf("%s=%s%s", p.Name, v, unit))
		}
		fmt.Fprintf(w, "  %s\t%d in\t%d out\t%s\n", k, k.NumPorts(), k.NumOutputs(), strings.Join(params, " "))
	}
	return w.Flush()
}

func runPresets(cmd *cobra.Command, args []string) error {
	presets, err := loadPresets()
	if err != nil {
		return err
	}
	for _, name := range presets.Names() {
		p, err := presets.Find(name)
		if err != nil {
			return err
		}
		origin := "built-in"
		if p.User {
			origin = "user"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, origin)
	}
	return nil
}
