package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/domain"
)

// NewValidateCmd создаёт команду проверки playbook-документа.
func NewValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the playbook document and list its entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.Settings(cmd)
			if err != nil {
				return err
			}
			out := app.Output()

			protocols, err := LoadProtocols(settings.Document)
			if err != nil {
				return err
			}

			views := entryViews(protocols)
			out.Notice("%s: %d protocol(s), %d entries", settings.Document, len(protocols), len(views))
			out.Entries(views)
			return nil
		},
	}
}

func entryViews(protocols []domain.ProtocolSpec) []entryView {
	var views []entryView
	for i := range protocols {
		p := &protocols[i]
		for j := range p.Roles {
			r := &p.Roles[j]
			v := entryView{
				Entry:   p.EntryName(r.Name),
				Min:     r.MinParticipants,
				Steps:   len(r.Steps),
				Workdir: r.Workdir,
			}
			if r.MaxParticipants != domain.Unbounded {
				upper := r.MaxParticipants
				v.Max = &upper
			}
			views = append(views, v)
		}
	}
	return views
}
