package main

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HugoJanow/ArticlePulse/internal/app"
	"github.com/HugoJanow/ArticlePulse/internal/cli"
	"github.com/HugoJanow/ArticlePulse/internal/database"
	"github.com/HugoJanow/ArticlePulse/internal/middleware"
	"github.com/HugoJanow/ArticlePulse/internal/platform/migrations"
	"github.com/HugoJanow/ArticlePulse/services/access"
	"github.com/HugoJanow/ArticlePulse/services/ledger"
)

func newAddressesCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "addresses",
		Short: "Show the deployed token and purchase contract addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs, err := app.LoadAddresses(s.cfg.Ledger)
			if err != nil {
				return err
			}
			if !addrs.Configured() {
				return fmt.Errorf("contract addresses not configured; deploy the contracts or set TOKEN_CONTRACT_ADDRESS and PURCHASE_CONTRACT_ADDRESS")
			}
			if err := addrs.Normalize(); err != nil {
				return err
			}
			return s.out.Result(
				cli.Field{Key: "tokenAddress", Value: addrs.TokenAddress},
				cli.Field{Key: "purchaseAddress", Value: addrs.PurchaseAddress},
				cli.Field{Key: "network", Value: addrs.Network},
				cli.Field{Key: "chainId", Value: addrs.ChainID.String()},
				cli.Field{Key: "deployedAt", Value: addrs.DeployedAt},
			)
		},
	}
}

func newMigrateCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL not set")
			}
			db, err := database.Open(cmd.Context(), database.Config{URL: s.cfg.Database.URL})
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Apply(cmd.Context(), db); err != nil {
				return err
			}
			names, _ := migrations.Names()
			s.out.Success("applied %d migrations", len(names))
			return nil
		},
	}
}

func newAttachContentCommand(s *session) *cobra.Command {
	var file, content string
	cmd := &cobra.Command{
		Use:   "attach-content <article>",
		Short: "Encrypt and attach a body to an article published without one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (content == "") {
				return fmt.Errorf("exactly one of --file or --content is required")
			}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				content = string(data)
			}
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			article, err := a.Catalog.AttachContent(cmd.Context(), args[0], content)
			if err != nil {
				return err
			}
			s.out.Success("content attached to article %d", article.ID)
			return s.out.Result(
				cli.Field{Key: "id", Value: article.ID},
				cli.Field{Key: "storageId", Value: article.StorageID},
				cli.Field{Key: "title", Value: article.Title},
			)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the body from a file")
	cmd.Flags().StringVar(&content, "content", "", "body text")
	return cmd
}

func newRotateKeyCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <article>",
		Short: "Re-encrypt an article body under a fresh key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			article, err := a.Catalog.RotateKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s.out.Success("key rotated for article %d", article.ID)
			return nil
		},
	}
}

func newResetPurchasesCommand(s *session) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-purchases",
		Short: "Delete every recorded purchase and cached access grant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete purchase records without --yes")
			}
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			n, err := a.Purchaser.Reset(cmd.Context())
			if err != nil {
				return err
			}
			s.out.Success("deleted %d purchase records", n)
			return s.out.Result(cli.Field{Key: "deleted", Value: n})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newCheckAccessCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "check-access <article> <address>",
		Short: "Show the access decision for a reader",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buyer, err := access.NormalizeRequester(args[1])
			if err != nil {
				return err
			}
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			article, err := a.Catalog.GetArticle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			d := a.Broker.Decide(cmd.Context(), article.ID, buyer)
			fields := []cli.Field{
				{Key: "article", Value: article.ID},
				{Key: "address", Value: buyer},
				{Key: "outcome", Value: string(d.Outcome)},
				{Key: "source", Value: string(d.Source)},
			}
			if d.Err != nil {
				fields = append(fields, cli.Field{Key: "error", Value: d.Err.Error()})
			}
			return s.out.Result(fields...)
		},
	}
}

func newPurchaseCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase <article> <address>",
		Short: "Buy an article on the ledger for a custodial wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			spin := cli.NewSpinner(s.w, "waiting for ledger confirmation")
			spin.Start()
			res, err := a.Purchaser.Purchase(cmd.Context(), args[0], args[1])
			spin.Stop()
			if err != nil {
				return err
			}
			if !res.Mirrored {
				s.out.Warning("purchase confirmed on the ledger but not recorded; record it with POST /purchases")
			}
			s.out.Success("article %d purchased", res.ArticleID)
			return s.out.Result(
				cli.Field{Key: "approvalReference", Value: res.ApprovalReference},
				cli.Field{Key: "transactionReference", Value: res.TransactionReference},
				cli.Field{Key: "price", Value: a.Ledger.FormatUnits(cmd.Context(), parseAtomic(res.Price))},
			)
		},
	}
}

func newBalanceCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show an address's token balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			bal, err := a.Ledger.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.out.Result(
				cli.Field{Key: "balance", Value: a.Ledger.FormatUnits(cmd.Context(), bal)},
				cli.Field{Key: "atomic", Value: bal.String()},
			)
		},
	}
}

func newFundCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "fund <address> <amount>",
		Short: "Transfer tokens from the operator wallet (PRIVATE_KEY)",
		Long:  "Transfer tokens from the operator wallet. amount is in whole tokens, e.g. 1.5.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			if a.Neo == nil {
				return fmt.Errorf("ledger not configured")
			}
			amount, err := ledger.ParseUnits(args[1], a.Neo.Decimals(cmd.Context()))
			if err != nil {
				return err
			}
			spin := cli.NewSpinner(s.w, "waiting for ledger confirmation")
			spin.Start()
			txRef, err := a.Neo.Fund(cmd.Context(), args[0], amount)
			spin.Stop()
			if err != nil {
				return err
			}
			s.out.Success("transferred %s tokens", args[1])
			return s.out.Result(
				cli.Field{Key: "transactionReference", Value: txRef},
				cli.Field{Key: "atomic", Value: amount.String()},
			)
		},
	}
}

func newTokenCommand(s *session) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token signed with ADMIN_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.cfg.Auth.AdminJWTSecret == "" {
				return fmt.Errorf("ADMIN_JWT_SECRET not set")
			}
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject is required")
			}
			token, err := middleware.IssueAdminToken(s.cfg.Auth.AdminJWTSecret, subject, s.cfg.Auth.AdminRole, ttl)
			if err != nil {
				return err
			}
			if s.asJSON {
				return s.out.JSON(map[string]string{"token": token})
			}
			fmt.Fprintln(s.w, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func parseAtomic(v string) *big.Int {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil
	}
	return n
}
