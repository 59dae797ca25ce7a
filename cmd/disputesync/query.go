package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	disputes, err := a.service(nil, nil).SyncDisputesForAccount(ctx, a.cfg.Account)
	if err != nil {
		return err
	}
	a.logger.Info("disputes synced", zap.String("account", a.cfg.Account), zap.Int("disputes", len(disputes)))
	return printJSON(cmd.OutOrStdout(), disputes)
}

func runProfile(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	profile, err := a.provider.FreshProfile(ctx, a.cfg.Account)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), profile)
}

func runNotificationRead(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logIndex, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("parse log index: %w", err)
	}
	unread, _ := cmd.Flags().GetBool("unread")

	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	notifications, err := a.provider.MarkNotificationRead(ctx, a.cfg.Account, args[0], logIndex, !unread)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), notifications)
}

func runContractAdd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	address := args[0]
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid contract address: %s", address)
	}
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}

	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.provider.UpdateContract(ctx, a.cfg.Account, address, params).Wait(ctx); err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	profile, err := a.provider.Profile(ctx, a.cfg.Account)
	if err != nil {
		return err
	}
	contract, _ := profile.FindContract(address)
	return printJSON(cmd.OutOrStdout(), contract)
}

// parseParams reads key=value pairs. Values that parse as JSON keep their
// type, anything else is a string.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", pair)
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
