package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/ratelimiter"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const maxMediaGroupSize = 10

// botAPI is the part of the Bot API client the target needs.
type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendMediaGroup(ctx context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error)
}

// Bot publishes through the Bot API to a numeric chat id.
type Bot struct {
	name           string
	chatID         int64
	disablePreview bool
	api            botAPI
	formatter      *formatter
	limiter        *ratelimiter.RateLimiter
	log            *slog.Logger
}

func NewBot(name string, cfg config.TargetConfig, deps Deps) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("bot target needs a bot_token")
	}

	api, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return newBot(name, cfg, api, deps, ratelimiter.New(BotRetryAfter, deps.Log))
}

func newBot(
	name string,
	cfg config.TargetConfig,
	api botAPI,
	deps Deps,
	limiter *ratelimiter.RateLimiter,
) (*Bot, error) {
	if cfg.ChatID == 0 {
		return nil, errors.New("bot target needs a chat_id")
	}

	return &Bot{
		name:           name,
		chatID:         cfg.ChatID,
		disablePreview: cfg.DisablePreview,
		api:            api,
		formatter:      newFormatter(cfg.NoFooter, summarizerFor(cfg, deps), deps.Log),
		limiter:        limiter,
		log:            deps.Log,
	}, nil
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Publish(ctx context.Context, update domain.Update) (bool, error) {
	body, media := b.formatter.format(ctx, update, Limit(len(update.Media) > 0))
	if strings.TrimSpace(body) == "" && len(media) == 0 {
		return false, nil
	}

	defer b.limiter.Cooldown(ctx)

	var err error
	switch len(media) {
	case 0:
		err = b.sendMessage(ctx, body)
	case 1:
		err = b.sendSingle(ctx, media[0], body)
	default:
		err = b.sendGroup(ctx, media, body)
	}

	if err != nil {
		return false, fmt.Errorf("send %s to chat %d: %w", update, b.chatID, err)
	}

	b.log.DebugContext(ctx, "Update is sent",
		"target", b.name,
		"update", update.String(),
		"chatID", b.chatID,
		"media", len(media))

	return true, nil
}

func (b *Bot) sendMessage(ctx context.Context, text string) error {
	return b.limiter.Do(ctx, func(ctx context.Context) error {
		params := &bot.SendMessageParams{
			ChatID:    b.chatID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		}
		if b.disablePreview {
			disabled := true
			params.LinkPreviewOptions = &models.LinkPreviewOptions{IsDisabled: &disabled}
		}

		_, err := b.api.SendMessage(ctx, params)

		return err
	})
}

func (b *Bot) sendSingle(ctx context.Context, media domain.Media, caption string) error {
	return b.limiter.Do(ctx, func(ctx context.Context) error {
		file := &models.InputFileString{Data: media.URL}

		var err error
		if media.Kind == domain.MediaKindVideo {
			_, err = b.api.SendVideo(ctx, &bot.SendVideoParams{
				ChatID:    b.chatID,
				Video:     file,
				Caption:   caption,
				ParseMode: models.ParseModeHTML,
			})
		} else {
			_, err = b.api.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID:    b.chatID,
				Photo:     file,
				Caption:   caption,
				ParseMode: models.ParseModeHTML,
			})
		}

		return err
	})
}

// sendGroup sends the media in albums of up to ten items. The caption goes
// with the first item of the first album; a trailing single item is sent on
// its own because an album needs at least two.
func (b *Bot) sendGroup(ctx context.Context, media []domain.Media, caption string) error {
	for start := 0; start < len(media); start += maxMediaGroupSize {
		chunk := media[start:min(start+maxMediaGroupSize, len(media))]

		chunkCaption := ""
		if start == 0 {
			chunkCaption = caption
		}

		if len(chunk) == 1 {
			if err := b.sendSingle(ctx, chunk[0], chunkCaption); err != nil {
				return err
			}
			continue
		}

		items := make([]models.InputMedia, 0, len(chunk))
		for i, m := range chunk {
			itemCaption := ""
			if i == 0 {
				itemCaption = chunkCaption
			}
			items = append(items, inputMedia(m, itemCaption))
		}

		err := b.limiter.Do(ctx, func(ctx context.Context) error {
			_, sendErr := b.api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
				ChatID: b.chatID,
				Media:  items,
			})

			return sendErr
		})
		if err != nil {
			return fmt.Errorf("send media group %d-%d: %w", start, start+len(chunk), err)
		}
	}

	return nil
}

func inputMedia(m domain.Media, caption string) models.InputMedia {
	if m.Kind == domain.MediaKindVideo {
		return &models.InputMediaVideo{
			Media:     m.URL,
			Caption:   caption,
			ParseMode: models.ParseModeHTML,
		}
	}

	return &models.InputMediaPhoto{
		Media:     m.URL,
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	}
}

// BotRetryAfter recognizes the Bot API "Too Many Requests" error.
func BotRetryAfter(err error) (time.Duration, bool) {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return time.Duration(tooMany.RetryAfter) * time.Second, true
	}

	return 0, false
}
