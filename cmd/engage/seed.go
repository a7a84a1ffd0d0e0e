package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"engage-ledger/services/reward"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newSeedCouponsCommand() *cobra.Command {
	var (
		rewardID string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "seed-coupons [url...]",
		Short: "Append coupon urls to a reward, numbered after the current maximum",
		Long: `Append coupon urls to a reward. Urls are read from the arguments, or one
per line from --file. Numbering continues after the highest existing number.

Example:
  engage seed-coupons --reward 4c1f... --file coupons.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(rewardID)
			if err != nil {
				return fmt.Errorf("invalid --reward: %w", err)
			}

			urls := args
			if file != "" {
				fromFile, err := readLines(file)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}

			var svc *reward.Service
			return runOnce(cmd.Context(), &svc, func(ctx context.Context) error {
				coupons, err := svc.AddCoupons(ctx, id, urls)
				if err != nil {
					return err
				}
				first, last := coupons[0].Number, coupons[len(coupons)-1].Number
				zap.L().Info("coupons seeded",
					zap.String("reward_id", id.String()),
					zap.Int("count", len(coupons)),
					zap.Int64("first", first),
					zap.Int64("last", last),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d coupons (%d-%d)\n", len(coupons), first, last)
				return nil
			}, fx.Provide(reward.NewService))
		},
	}

	cmd.Flags().StringVar(&rewardID, "reward", "", "reward id (required)")
	cmd.Flags().StringVar(&file, "file", "", "file with one coupon url per line")
	_ = cmd.MarkFlagRequired("reward")

	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
