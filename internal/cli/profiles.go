package cli

import (
	"fmt"
	"maps"
	"text/tabwriter"

	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/logutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProfilesCmd(a *app) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the resolved execution profiles",
		Long: `List the resolved execution profiles.

With --yaml the output is a profiles file that PROFILES_FILE accepts. Sensitive
header values are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			names := a.cfg.ProfileNames()

			if asYAML {
				var doc struct {
					Profiles []config.Profile `yaml:"profiles"`
				}
				for _, name := range names {
					doc.Profiles = append(doc.Profiles, redactProfile(a.cfg.Profiles[name]))
				}
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(doc); err != nil {
					return err
				}
				return enc.Close()
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			printf(tw, "NAME\tBROWSER\tDEVICE\tTEST DIR\tVIEWPORT\n")
			for _, name := range names {
				p := a.cfg.Profiles[name]
				browser, viewport := p.Browser, "-"
				if browser == "" {
					browser = "-"
				}
				if p.Viewport != nil {
					viewport = fmt.Sprintf("%dx%d", p.Viewport.Width, p.Viewport.Height)
				}
				printf(tw, "%s\t%s\t%s\t%s\t%s\n", name, browser, p.Device, p.TestDir, viewport)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as a profiles file")
	return cmd
}

func redactProfile(p config.Profile) config.Profile {
	if len(p.ExtraHTTPHeaders) == 0 {
		return p
	}
	p.ExtraHTTPHeaders = maps.Clone(p.ExtraHTTPHeaders)
	for k := range p.ExtraHTTPHeaders {
		if logutil.IsSensitiveLogField(k) {
			p.ExtraHTTPHeaders[k] = "[REDACTED]"
		}
	}
	return p
}
