// Relayer CLI - admin and diagnostic commands for the shielded-payment relayer.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cipherpay/relayer/internal/config"
	"github.com/cipherpay/relayer/internal/storage"
	"github.com/cipherpay/relayer/internal/zkp"
)

func main() {
	root := &cobra.Command{
		Use:   "relayer-cli",
		Short: "Admin and diagnostic commands for the shielded-payment relayer",
	}

	root.AddCommand(treeCmd())
	root.AddCommand(vkCmd())
	root.AddCommand(nullifierCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func treeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tree", Short: "Merkle tree administration"}

	var treeID uint32
	var depth uint8

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a fresh tree at the configured tree id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, hasher, zeros, err := bootstrap()
			if err != nil {
				return err
			}
			defer store.Close()

			tree := storage.NewMerkleStore(store, hasher, zeros)
			if depth == 0 {
				depth = cfg.TreeDepth
			}
			if treeID == 0 {
				treeID = cfg.TreeID
			}
			if err := tree.InitializeTree(context.Background(), treeID, depth); err != nil {
				return err
			}
			fmt.Printf("initialized tree_id=%d depth=%d\n", treeID, depth)
			return nil
		},
	}
	initCmd.Flags().Uint32Var(&treeID, "tree-id", 0, "tree id (defaults to RELAYER_TREE_ID)")
	initCmd.Flags().Uint8Var(&depth, "depth", 0, "tree depth (defaults to RELAYER_TREE_DEPTH)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current root, next_index, and recent-roots ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, hasher, zeros, err := bootstrap()
			if err != nil {
				return err
			}
			defer store.Close()

			tree := storage.NewMerkleStore(store, hasher, zeros)
			ctx := context.Background()
			root, nextIndex, err := tree.RootAndNextIndex(ctx, cfg.TreeID)
			if err != nil {
				return err
			}
			recent, err := tree.RecentRoots(ctx, cfg.TreeID)
			if err != nil {
				return err
			}
			fmt.Printf("tree_id=%d root=%s next_index=%d recent_roots=%d\n", cfg.TreeID, root.HexBE(), nextIndex, len(recent))
			return nil
		},
	}

	cmd.AddCommand(initCmd, statusCmd)
	return cmd
}

func vkCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "vk", Short: "Verifying-key administration"}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every circuit kind has a loaded verifying key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v := zkp.NewVerifier()
			if err := v.LoadKeysFromDir(cfg.VKDir); err != nil {
				fmt.Println("FAIL:", err)
				os.Exit(1)
			}
			ready, missing := v.Ready()
			if ready {
				fmt.Println("all circuit verifying keys loaded")
				return nil
			}
			fmt.Println("missing verifying keys:")
			for _, k := range missing {
				fmt.Println(" -", k)
			}
			os.Exit(1)
			return nil
		},
	}

	cmd.AddCommand(verifyCmd)
	return cmd
}

func nullifierCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "nullifier", Short: "Nullifier mirror diagnostics"}

	checkCmd := &cobra.Command{
		Use:   "check <decimal-fe>",
		Short: "Check whether a nullifier is marked spent in the off-chain mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, _, err := bootstrap()
			if err != nil {
				return err
			}
			defer store.Close()

			fe, err := zkp.FeFromDecimalString(args[0])
			if err != nil {
				return err
			}
			nullifiers := zkp.NewNullifierSet(storage.NewNullifierMarkerStore(store))
			spent, err := nullifiers.IsSpent(context.Background(), fe)
			if err != nil {
				return err
			}
			fmt.Printf("nullifier %s spent=%v\n", args[0], spent)
			return nil
		},
	}

	cmd.AddCommand(checkCmd)
	return cmd
}

func bootstrap() (*config.Config, *storage.Store, *zkp.Hasher, *zkp.ZeroCache, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	store, err := storage.NewFromDSN(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	hasher, err := zkp.NewHasher()
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}
	zeros := zkp.NewZeroCache(hasher)
	return cfg, store, hasher, zeros, nil
}
