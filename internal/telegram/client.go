// Package telegram delivers notifications and serves bot commands via
// the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vnmetals/silverwatch/internal/dispatch"
	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/render"
)

// Client handles Telegram delivery. It implements the dispatcher's
// sender contract and the scheduler's alerter contract.
type Client struct {
	bot            *tgbotapi.BotAPI
	groupID        int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, groupChatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	groupID, err := strconv.ParseInt(groupChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid group chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		groupID:        groupID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// GroupID returns the configured group chat ID.
func (c *Client) GroupID() int64 {
	return c.groupID
}

// SendTo sends a MarkdownV2 message to one chat with linear-backoff
// retry. A rejection that proves the chat can never be reached (bot
// blocked, chat deleted) is reported as dispatch.ErrRecipientUnreachable
// without burning the remaining retries.
func (c *Client) SendTo(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else if unreachable(err) {
			return fmt.Errorf("%w: chat %d: %v", dispatch.ErrRecipientUnreachable, chatID, err)
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendToGroup sends a MarkdownV2 message to the group chat.
func (c *Client) SendToGroup(text string) error {
	return c.SendTo(c.groupID, text)
}

// SendHealthAlert notifies the group that polling has been failing.
func (c *Client) SendHealthAlert(failures int, lastSuccess time.Time) error {
	return c.SendToGroup(render.HealthAlert(failures, lastSuccess))
}

// SendRecovery notifies the group that polling succeeded again after an
// alerted outage.
func (c *Client) SendRecovery(failures int) error {
	return c.SendToGroup(render.Recovery(failures))
}

// unreachable reports whether the API rejection means the chat can
// never be delivered to again.
func unreachable(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 403 {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "chat not found") || strings.Contains(msg, "user is deactivated")
}

// ListenForCommands starts a goroutine that polls for Telegram updates
// and routes bot commands to the shell. It returns immediately; the
// goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, shell *Shell) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, shell, update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, shell *Shell, msg *tgbotapi.Message) {
	reply := shell.Respond(ctx, msg.Command(), msg.CommandArguments(), msg.Chat.ID)
	if reply == "" {
		return
	}
	if err := c.SendTo(msg.Chat.ID, reply); err != nil {
		logger.Warn("Failed to reply to /%s in chat %d: %v", msg.Command(), msg.Chat.ID, err)
	}
}
