package cli

import (
	"fmt"

	"fishercore/internal/auth"
	"fishercore/internal/core"
	"fishercore/pkg/domain"

	"github.com/spf13/cobra"
)

// catchPayload is the signed payload of a catch request. Binding the target
// wallet, token and score stops a signature from being reused for another catch.
func catchPayload(target domain.Wallet, tokenRef string, score int) string {
	return fmt.Sprintf("%s:%s:%d", target, tokenRef, score)
}

func loadKey(keyPath string) (auth.KeyPair, error) {
	if keyPath == "" {
		return auth.KeyPair{}, invalidFlag("--key is required")
	}
	return auth.LoadKey(keyPath)
}

// authenticate signs op with kp and verifies the request, producing the
// actor the service authorizes against.
func authenticate(kp auth.KeyPair, op, payload string) (domain.Actor, error) {
	req, err := auth.SignRequest(kp.PrivateKey, op, payload)
	if err != nil {
		return domain.Actor{}, err
	}
	return auth.Verify(req)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the fisher record owned by your wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := loadKey(keyPath)
			if err != nil {
				return err
			}
			actor, err := authenticate(kp, auth.OpInitialize, "")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				rec, err := a.svc.InitializeFisher(cmd.Context(), actor)
				if err != nil {
					return err
				}
				view := newStatsView(rec.Stats())
				return formatterFor(rootOpts, cmd).Success(view, view.render)
			})
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "wallet key file")
	return cmd
}

// NewCatchCommand creates the catch command.
func NewCatchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		keyPath  string
		target   string
		tokenRef string
		score    int
	)
	cmd := &cobra.Command{
		Use:   "catch",
		Short: "Record a catch against a fisher record",
		Long: `Record one catch. Scores above 70 count as a big fish worth 50 points;
every other catch is worth 10. The record defaults to the key's own wallet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := loadKey(keyPath)
			if err != nil {
				return err
			}
			wallet := kp.Wallet
			if target != "" {
				if wallet, err = domain.ParseWallet(target); err != nil {
					return err
				}
			}
			actor, err := authenticate(kp, auth.OpRecordCatch, catchPayload(wallet, tokenRef, score))
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				rec, err := a.svc.RecordCatch(cmd.Context(), wallet, actor, tokenRef, score)
				if err != nil {
					return err
				}
				// Show the reference as stored, not as typed.
				ref, err := core.NormalizeTokenRef(tokenRef)
				if err != nil {
					return err
				}
				view := CatchResultView{
					StatsView: newStatsView(rec.Stats()),
					TokenRef:  ref,
					Score:     score,
					BigFish:   domain.AwardFor(uint8(score)).BigFish,
				}
				return formatterFor(rootOpts, cmd).Success(view, view.render)
			})
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "wallet key file")
	cmd.Flags().StringVarP(&target, "wallet", "w", "", "record wallet (defaults to the key's wallet)")
	cmd.Flags().StringVarP(&tokenRef, "token", "t", "", "scanned token reference")
	cmd.Flags().IntVarP(&score, "score", "s", -1, "big fish score 0..100")
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var sel walletSelector
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a fisher's catches, reputation and rank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := sel.resolve()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				stats, err := a.svc.GetFisherStats(cmd.Context(), wallet)
				if err != nil {
					return err
				}
				view := newStatsView(stats)
				return formatterFor(rootOpts, cmd).Success(view, view.render)
			})
		},
	}
	sel.register(cmd)
	return cmd
}

// NewCatchesCommand creates the catches command.
func NewCatchesCommand(rootOpts *RootOptions) *cobra.Command {
	var sel walletSelector
	cmd := &cobra.Command{
		Use:   "catches",
		Short: "List archived catches for a fisher",
		Long:  `List archived catches, oldest first. Requires archive.enabled in the config.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := sel.resolve()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				events, err := a.svc.ListCatches(cmd.Context(), wallet)
				if err != nil {
					return err
				}
				formatterFor(rootOpts, cmd).VerboseLog("%d catches archived for %s", len(events), wallet)
				view := newCatchListView(wallet, events)
				return formatterFor(rootOpts, cmd).Success(view, view.render)
			})
		},
	}
	sel.register(cmd)
	return cmd
}
