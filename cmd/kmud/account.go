package main

import (
	"errors"
	"fmt"

	"github.com/crystal-mush/kmud/pkg/events"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/crystal-mush/kmud/pkg/server"
	"github.com/crystal-mush/kmud/pkg/service"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage player accounts offline",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <login> <password>",
	Short: "Create an account",
	Long: `Create an account directly in the store, the same way the in-game
"register" command does. The server must not be running against a
bolt store.`,
	Args: cobra.ExactArgs(2),
	RunE: runAccountCreate,
}

func init() {
	accountCmd.AddCommand(accountCreateCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := server.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := service.New(st, events.NewBus(), cfg.BcryptCost)
	acct, err := svc.Accounts.Create(args[0], args[1])
	if errors.Is(err, gamedb.ErrExists) {
		return fmt.Errorf("account %q already exists", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (#%d)\n", acct.Login, acct.ID)
	return nil
}
