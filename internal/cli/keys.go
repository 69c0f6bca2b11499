package cli

import (
	"crypto/rand"

	"fishercore/internal/auth"
	"fishercore/pkg/domain"

	"github.com/spf13/cobra"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a wallet keypair",
		Long: `Generate an ed25519 wallet keypair and write it to --out with owner-only
permissions. Existing files are never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return invalidFlag("--out is required")
			}
			kp, err := auth.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			if err := auth.SaveKey(out, kp); err != nil {
				return err
			}
			view := IdentityView{Wallet: kp.Wallet.String(), Address: domain.DeriveAddress(kp.Wallet), KeyFile: out}
			return formatterFor(rootOpts, cmd).Success(view, view.render)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "path of the key file to create")
	return cmd
}

// NewAddressCommand creates the address command.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	var sel walletSelector
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the record address derived from a wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := sel.resolve()
			if err != nil {
				return err
			}
			view := IdentityView{Wallet: wallet.String(), Address: domain.DeriveAddress(wallet)}
			return formatterFor(rootOpts, cmd).Success(view, view.render)
		},
	}
	sel.register(cmd)
	return cmd
}

// walletSelector resolves the target wallet from --wallet or --key.
type walletSelector struct {
	wallet  string
	keyPath string
}

func (s *walletSelector) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.wallet, "wallet", "w", "", "wallet public key (hex)")
	cmd.Flags().StringVarP(&s.keyPath, "key", "k", "", "key file whose wallet to use")
	cmd.MarkFlagsMutuallyExclusive("wallet", "key")
}

func (s *walletSelector) resolve() (domain.Wallet, error) {
	switch {
	case s.wallet != "":
		return domain.ParseWallet(s.wallet)
	case s.keyPath != "":
		kp, err := auth.LoadKey(s.keyPath)
		if err != nil {
			return domain.Wallet{}, err
		}
		return kp.Wallet, nil
	default:
		return domain.Wallet{}, invalidFlag("one of --wallet or --key is required")
	}
}
