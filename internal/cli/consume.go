package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/spot-confirmation/internal/config"
	"github.com/iliyamo/spot-confirmation/internal/notify"
	"github.com/iliyamo/spot-confirmation/internal/queue"
)

// NewConsumeCommand creates the consume command.
func NewConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Deliver queued notifications",
		Long: `Consume the notification queue and deliver every message to the
notification log file and, when TELEGRAM_BOT_TOKEN is set, the ops chat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			d, err := newDeliverer(cfg, log)
			if err != nil {
				return err
			}
			err = queue.StartNotificationConsumer(ctx, cfg.AMQPURL, d, log.WithField("component", "consumer"))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// newDeliverer fans out to the log file and Telegram.
func newDeliverer(cfg config.Config, log *logrus.Logger) (notify.Fanout, error) {
	tg, err := notify.NewTelegramDeliverer(cfg.TelegramToken, cfg.TelegramChatID, log.WithField("component", "telegram"))
	if err != nil {
		return nil, err
	}
	return notify.Fanout{notify.NewFileDeliverer(cfg.NotificationLog), tg}, nil
}
