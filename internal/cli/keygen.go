package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerflow/internal/app"
	"github.com/roach88/ledgerflow/internal/config"
	"github.com/roach88/ledgerflow/internal/identity"
	"github.com/roach88/ledgerflow/internal/ledger"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Seed string
}

// PartyKey is a party and its base58 public key.
type PartyKey struct {
	Party     string `json:"party"`
	PublicKey string `json:"public_key"`
}

// KeyList is the output of keygen.
type KeyList []PartyKey

func (l KeyList) String() string {
	lines := make([]string, len(l))
	for i, k := range l {
		lines[i] = fmt.Sprintf("%-12s %s", k.Party, k.PublicKey)
	}
	return strings.Join(lines, "\n")
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen [party]",
		Short: "Derive or generate party keys",
		Long: `Print the public key of a party.

With a party argument, the key is derived from --seed, or generated at
random when no seed is given. Without arguments, the keys of every party in
the network configuration are printed.

Examples:
  ledgerflow keygen Alice --seed alice
  ledgerflow keygen --config ./network`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Seed, "seed", "", "derive the key from this seed")
	return cmd
}

func runKeygen(opts *KeygenOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if len(args) == 1 {
		party := ledger.PartyID(args[0])
		var kp *identity.KeyPair
		if opts.Seed != "" {
			kp = identity.NewKeyPairFromSeed(party, []byte(opts.Seed))
		} else {
			var err error
			if kp, err = identity.GenerateKeyPair(party); err != nil {
				return WrapExitError(ExitCommandError, "failed to generate key", err)
			}
		}
		return f.Success(KeyList{{Party: string(party), PublicKey: kp.PublicKey().String()}})
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load network config", err)
	}
	keys, _ := app.Keys(cfg)
	list := make(KeyList, 0, len(cfg.Parties))
	for _, p := range cfg.Parties {
		list = append(list, PartyKey{Party: string(p.Name), PublicKey: keys[p.Name].PublicKey().String()})
	}
	f.VerboseLog("notary: %s", cfg.Notary)
	return f.Success(list)
}
