package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/store"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the draft has unpublished changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, cs *store.ConfigStore) error {
				state, err := cs.Status(ctx)
				if err != nil {
					return err
				}
				live, err := cs.GetLive(ctx)
				if err != nil {
					return err
				}
				draft, err := cs.GetDraft(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Status: %s\n", state)
				fmt.Fprintf(out, "  live   v%d  %s  %s\n", live.Version, live.UpdatedAt.Format("2006-01-02 15:04:05"), live.UpdatedBy)
				fmt.Fprintf(out, "  draft  v%d  %s  %s\n", draft.Version, draft.UpdatedAt.Format("2006-01-02 15:04:05"), draft.UpdatedBy)
				return nil
			})
		},
	}
}

func (a *app) publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish the draft layout and theme to live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, cs *store.ConfigStore) error {
				if err := cs.Publish(ctx); err != nil {
					if errors.Is(err, store.ErrPublishFailed) {
						return fmt.Errorf("%w\nThe live storefront is unchanged and the draft is kept; run publish again to retry", err)
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Draft published to live")
				return nil
			})
		},
	}
}

func (a *app) discardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Discard unpublished draft changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, cs *store.ConfigStore) error {
				if err := cs.DiscardDraft(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Draft reset to live")
				return nil
			})
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the default layouts and theme to both records",
		Long: `Seed writes the default home layout, footer layout and theme to the live
and draft records. Existing records are left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, cs *store.ConfigStore) error {
				seeded, err := cs.Seed(ctx, force)
				if err != nil {
					return err
				}
				if seeded {
					fmt.Fprintln(cmd.OutOrStdout(), "Seeded live and draft with the default layout")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Store already configured, nothing seeded (use --force to overwrite)")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing records")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var slot string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse the stored layouts and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slots := []store.Slot{store.Live, store.Draft}
			if slot != "" {
				s, err := store.ParseSlot(slot)
				if err != nil {
					return err
				}
				slots = []store.Slot{s}
			}

			return a.withStore(cmd, func(ctx context.Context, cs *store.ConfigStore) error {
				out := cmd.OutOrStdout()
				unreadable := 0
				issues := 0
				for _, s := range slots {
					rec, err := load(ctx, cs, s)
					if err != nil {
						return err
					}
					for _, doc := range []struct{ name, raw string }{
						{"home", rec.HomeLayout},
						{"footer", rec.FooterLayout},
					} {
						res, err := storefront.ParseBlocksDetailed(doc.raw)
						if err != nil {
							unreadable++
							fmt.Fprintf(out, "❌ %s %s: %v\n", s, doc.name, err)
							continue
						}
						issues += len(res.Issues)
						mark := "✅"
						if len(res.Issues) > 0 {
							mark = "⚠️ "
						}
						fmt.Fprintf(out, "%s %s %s: %d blocks\n", mark, s, doc.name, len(res.Blocks))
						for _, issue := range res.Issues {
							fmt.Fprintf(out, "    %s\n", issue)
						}
					}
				}
				if unreadable > 0 {
					return fmt.Errorf("%d layout(s) cannot be parsed; the storefront is showing the default layout in their place", unreadable)
				}
				if issues > 0 {
					fmt.Fprintf(out, "\n%d element(s) will be dropped when rendered\n", issues)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&slot, "slot", "", "only validate this record: live or draft")
	return cmd
}

func (a *app) migrateNewsletterCmd() *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "migrate-newsletter",
		Short: "Convert newsletter forms in HTML blocks to newsletter blocks",
		Long: `Migrate-newsletter finds HTML blocks in the draft home and footer layouts
that carry a newsletter signup form and replaces them with structured
newsletter blocks. With --publish the converted draft goes live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, cs *store.ConfigStore) error {
				n, err := cs.ConvertNewsletter(ctx, publish)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Converted %d block(s)\n", n)
				if publish {
					fmt.Fprintln(out, "Draft published to live")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the draft after converting")
	return cmd
}

func load(ctx context.Context, cs *store.ConfigStore, slot store.Slot) (*store.Record, error) {
	if slot == store.Draft {
		return cs.GetDraft(ctx)
	}
	return cs.GetLive(ctx)
}
