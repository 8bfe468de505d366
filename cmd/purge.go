package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/talentscout/talentscout/internal/logger"
	"github.com/talentscout/talentscout/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every candidate record past its retention deadline",
	Run: func(_ *cobra.Command, _ []string) {
		purge()
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func purge() {
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

	purged, err := st.PurgeExpired(context.Background(), time.Now())
	if err != nil {
		logger.Fatal("purging expired records", zap.Error(err))
	}

	fmt.Printf("Purged %d expired record(s).\n", purged)
}
