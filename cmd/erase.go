package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/talentscout/talentscout/internal/logger"
	"github.com/talentscout/talentscout/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var eraseCmd = &cobra.Command{
	Use:   "erase <session-id>",
	Short: "Delete a candidate's record immediately, regardless of retention",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		erase(args[0])
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}

func erase(id string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	st, err := store.Open(config.Storage)
	if err != nil {
		logger.Fatal("opening the candidate store", zap.Error(err))
	}
	defer st.Close()

	if err := st.Erase(context.Background(), id); err != nil {
		if errors.Is(err, store.ErrRecordUnavailable) {
			logger.Fatal("no record with this session id", zap.String("session_id", id))
		}
		logger.Fatal("erasing the record", zap.Error(err))
	}

	fmt.Printf("Record %s erased.\n", id)
}
