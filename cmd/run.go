package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/talentscout/talentscout/internal/ai"
	"github.com/talentscout/talentscout/internal/ai/gemini"
	"github.com/talentscout/talentscout/internal/candidate"
	"github.com/talentscout/talentscout/internal/engine"
	"github.com/talentscout/talentscout/internal/logger"
	"github.com/talentscout/talentscout/internal/secrets"
	"github.com/talentscout/talentscout/internal/store"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// In-chat command erasing the candidate's record immediately.
	eraseCommand = "/erase"

	assistantLabel = "TalentScout"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive screening conversation",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("session", "", "resume an existing session by id instead of starting a new one")

	viper.BindPFlag("session", runCmd.Flags().Lookup("session"))
}

// run drives one candidate conversation from greeting to farewell.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting talentscout", zap.String("version", version))

	completer, err := newCompleter(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the language model gateway", zap.Error(err))
	}

	st, err := store.Open(config.Storage)
	if err != nil {
		logger.Fatal("opening the candidate store", zap.Error(err))
	}
	defer st.Close()

	// Expired records are swept on every start, keeping the retention
	// promise without a background scheduler.
	if purged, err := st.PurgeExpired(ctx, time.Now()); err != nil {
		logger.Warn("purging expired records", zap.Error(err))
	} else if purged > 0 {
		logger.Info("purged expired candidate records", zap.Int("count", purged))
	}

	record, err := openSession(ctx, cmd, st, config)
	if err != nil {
		logger.Fatal("opening the session", zap.Error(err))
	}

	eng := engine.New(st, completer, logger, config.GatewayTimeout)

	fmt.Printf("Session %s (type %s at any point to delete all your data)\n\n", record.ID, eraseCommand)

	// The assistant speaks first: process an empty opening turn so the
	// greeting comes from the same phase machine as every other reply.
	turn, err := eng.ProcessTurn(ctx, record.ID, "")
	if err != nil {
		logger.Fatal("starting the conversation", zap.Error(err))
	}
	fmt.Printf("%s: %s\n\n", assistantLabel, turn.Reply)

	input := promptui.Prompt{Label: "You"}

	for turn.Phase != candidate.Ended {
		text, err := input.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				logger.Info("conversation interrupted", zap.String("session_id", record.ID))
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		if strings.TrimSpace(text) == eraseCommand {
			if err := st.Erase(ctx, record.ID); err != nil {
				logger.Fatal("erasing the record", zap.Error(err))
			}
			fmt.Printf("%s: Your data has been deleted. Take care!\n", assistantLabel)
			return
		}

		turn, err = eng.ProcessTurn(ctx, record.ID, text)
		if err != nil {
			logger.Fatal("processing the conversation turn", zap.Error(err))
		}

		fmt.Printf("\n%s: %s\n\n", assistantLabel, turn.Reply)
	}
}

func openSession(ctx context.Context, cmd *cobra.Command, st *store.Store, config *Config) (*candidate.Record, error) {
	if id := strings.TrimSpace(viper.GetString("session")); id != "" {
		return st.Get(ctx, id)
	}
	return st.Create(ctx, config.retention())
}

// newCompleter builds the configured language model gateway.
func newCompleter(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Completer, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.WithFields(log,
		zap.String(logger.FieldProvider, "gemini"),
		zap.String(logger.FieldModel, cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	return gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
}
