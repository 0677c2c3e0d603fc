package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/ratelimiter"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/constant"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const dialogsBatchSize = 100

var ErrChatNotFound = errors.New("chat is not among the account's dialogs")

// destination is where a user target sends: a peer (@username or t.me link)
// or, when it is empty, a chat id as the Bot API writes it.
type destination struct {
	peer   string
	chatID int64
}

func (d destination) String() string {
	if d.peer != "" {
		return d.peer
	}

	return strconv.FormatInt(d.chatID, 10)
}

// textSender sends HTML styled text.
type textSender interface {
	SendText(ctx context.Context, dest destination, text string) error
}

// User publishes from a user account over MTProto. Media is not attached,
// only the text and the footer are sent.
type User struct {
	name      string
	dest      destination
	sender    textSender
	formatter *formatter
	limiter   *ratelimiter.RateLimiter
	log       *slog.Logger
}

func NewUser(name string, cfg config.TargetConfig, deps Deps) (*User, error) {
	switch {
	case cfg.APIID == 0 || cfg.APIHash == "":
		return nil, errors.New("user target needs api_id and api_hash")
	case cfg.Session == "":
		return nil, errors.New("user target needs a session file")
	}

	sender := &mtprotoSender{
		appID:   cfg.APIID,
		appHash: cfg.APIHash,
		session: cfg.Session,
	}

	return newUser(name, cfg, sender, deps, ratelimiter.New(UserRetryAfter, deps.Log))
}

func newUser(
	name string,
	cfg config.TargetConfig,
	sender textSender,
	deps Deps,
	limiter *ratelimiter.RateLimiter,
) (*User, error) {
	dest := destination{peer: strings.TrimSpace(cfg.Peer), chatID: cfg.ChatID}
	if dest.peer == "" && dest.chatID == 0 {
		return nil, errors.New("user target needs a peer or a chat_id")
	}

	return &User{
		name:      name,
		dest:      dest,
		sender:    sender,
		formatter: newFormatter(cfg.NoFooter, summarizerFor(cfg, deps), deps.Log),
		limiter:   limiter,
		log:       deps.Log,
	}, nil
}

func (u *User) Name() string {
	return u.name
}

func (u *User) Publish(ctx context.Context, update domain.Update) (bool, error) {
	body, _ := u.formatter.format(ctx, update, Limit(false))
	if strings.TrimSpace(body) == "" {
		return false, nil
	}

	defer u.limiter.Cooldown(ctx)

	err := u.limiter.Do(ctx, func(ctx context.Context) error {
		return u.sender.SendText(ctx, u.dest, body)
	})
	if err != nil {
		return false, fmt.Errorf("send %s to %s: %w", update, u.dest, err)
	}

	u.log.DebugContext(ctx, "Update is sent",
		"target", u.name,
		"update", update.String(),
		"peer", u.dest.String())

	return true, nil
}

// UserRetryAfter recognizes the MTProto FLOOD_WAIT error.
func UserRetryAfter(err error) (time.Duration, bool) {
	return tgerr.AsFloodWait(err)
}

// mtprotoSender connects with the stored session for every send. The session
// must have been authorized beforehand.
type mtprotoSender struct {
	appID   int
	appHash string
	session string
}

func (m *mtprotoSender) SendText(ctx context.Context, dest destination, text string) error {
	client := telegram.NewClient(m.appID, m.appHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: m.session},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("get auth status: %w", err)
		}
		if !status.Authorized {
			return errors.New("session is not authorized")
		}

		sender := message.NewSender(client.API())
		if dest.peer != "" {
			_, err = sender.Resolve(dest.peer).StyledText(ctx, html.String(nil, text))
		} else {
			var peer tg.InputPeerClass
			if peer, err = findDialog(ctx, client.API(), dest.chatID); err != nil {
				return err
			}
			_, err = sender.To(peer).StyledText(ctx, html.String(nil, text))
		}
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}

		return nil
	})
}

// findDialog looks the chat up among the account's dialogs, which is where
// the access hash of a private channel comes from.
func findDialog(ctx context.Context, api *tg.Client, chatID int64) (tg.InputPeerClass, error) {
	var found tg.InputPeerClass

	errFound := errors.New("found")
	err := dialogs.NewQueryBuilder(api).GetDialogs().BatchSize(dialogsBatchSize).ForEach(ctx,
		func(_ context.Context, elem dialogs.Elem) error {
			if !matchesChatID(elem.Peer, chatID) {
				return nil
			}

			found = elem.Peer

			return errFound
		})

	switch {
	case found != nil:
		return found, nil
	case err != nil:
		return nil, fmt.Errorf("iterate dialogs: %w", err)
	default:
		return nil, fmt.Errorf("chat %d: %w", chatID, ErrChatNotFound)
	}
}

// matchesChatID accepts Bot API ids (-100 prefixed channels, negative
// groups) as well as plain positive MTProto ids.
func matchesChatID(peer tg.InputPeerClass, chatID int64) bool {
	var key dialogs.DialogKey
	if err := key.FromInputPeer(peer); err != nil {
		return false
	}

	var id constant.TDLibPeerID
	switch key.Kind {
	case dialogs.User:
		id.User(key.ID)
	case dialogs.Chat:
		id.Chat(key.ID)
	case dialogs.Channel:
		id.Channel(key.ID)
	}

	return int64(id) == chatID || (chatID > 0 && key.ID == chatID)
}
