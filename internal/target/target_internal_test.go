package target

import (
	"context"
	"errors"
	"log/slog"
	"social2tg/internal/config"
	"social2tg/internal/domain"
	"social2tg/internal/markup"
	"social2tg/internal/ratelimiter"
	"social2tg/internal/summarizer"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

var errBadRequest = errors.New("bad request: can't parse entities")

type sentMessage struct {
	method  string
	text    string
	media   []models.InputMedia
	preview *models.LinkPreviewOptions
}

// stubBotAPI records calls and returns the queued errors in order.
type stubBotAPI struct {
	mu   sync.Mutex
	errs []error
	sent []sentMessage
}

func (s *stubBotAPI) next(m sentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, m)
	if len(s.errs) == 0 {
		return nil
	}

	err := s.errs[0]
	s.errs = s.errs[1:]

	return err
}

func (s *stubBotAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	return &models.Message{}, s.next(sentMessage{method: "sendMessage", text: p.Text, preview: p.LinkPreviewOptions})
}

func (s *stubBotAPI) SendPhoto(_ context.Context, p *bot.SendPhotoParams) (*models.Message, error) {
	return &models.Message{}, s.next(sentMessage{method: "sendPhoto", text: p.Caption})
}

func (s *stubBotAPI) SendVideo(_ context.Context, p *bot.SendVideoParams) (*models.Message, error) {
	return &models.Message{}, s.next(sentMessage{method: "sendVideo", text: p.Caption})
}

func (s *stubBotAPI) SendMediaGroup(_ context.Context, p *bot.SendMediaGroupParams) ([]*models.Message, error) {
	return nil, s.next(sentMessage{method: "sendMediaGroup", media: p.Media})
}

func (s *stubBotAPI) calls() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]sentMessage(nil), s.sent...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)

	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.sleeps...)
}

type stubSummarizer struct {
	summary string
	inputs  []summarizer.Input
}

func (s *stubSummarizer) Summarize(_ context.Context, input summarizer.Input) (string, error) {
	s.inputs = append(s.inputs, input)

	return s.summary, nil
}

func newTestBot(
	t *testing.T,
	cfg config.TargetConfig,
	api botAPI,
	deps Deps,
) (*Bot, *sleepRecorder) {
	t.Helper()

	if cfg.ChatID == 0 {
		cfg.ChatID = -100123
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	rec := &sleepRecorder{}
	limiter := ratelimiter.New(BotRetryAfter, deps.Log, ratelimiter.WithSleeper(rec.sleep))

	b, err := newBot("channel", cfg, api, deps, limiter)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	return b, rec
}

func testUpdate(text string, media ...domain.Media) domain.Update {
	return domain.Update{
		Identifier: "abc",
		Author:     "@nasa",
		AuthorURL:  "https://www.instagram.com/nasa",
		Text:       text,
		Media:      media,
		OrigURL:    "https://www.instagram.com/p/abc/",
		Type:       domain.UpdateTypePost,
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		footer string
		limit  int
		want   string
	}{
		{name: "fits", text: "hello", footer: "12345", limit: 10, want: "hello"},
		{name: "exactly at limit", text: "hello!", footer: "1234", limit: 10, want: "hello!"},
		{name: "one over", text: "hello world", footer: "", limit: 10, want: "hello w..."},
		{name: "footer counts", text: "abcdefghij", footer: "12345", limit: 10, want: "ab..."},
		{name: "runes are characters", text: "привет мир!", footer: "", limit: 8, want: "приве..."},
		{name: "footer longer than limit", text: "text", footer: "123456789012", limit: 10, want: "..."},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Fit(test.text, test.footer, test.limit); got != test.want {
				t.Errorf("Expected %q, got %q", test.want, got)
			}
		})
	}
}

func TestBotTruncationLaw(t *testing.T) {
	tests := []struct {
		name  string
		media []domain.Media
		limit int
	}{
		{name: "message", limit: messageLimit},
		{name: "caption", media: []domain.Media{{URL: "https://cdn.example/1.jpg", Kind: domain.MediaKindImage}}, limit: captionLimit},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			api := &stubBotAPI{}
			b, _ := newTestBot(t, config.TargetConfig{}, api, Deps{})

			update := testUpdate(strings.Repeat("a", 5000), test.media...)
			footer := update.Footer()

			ok, err := b.Publish(context.Background(), update)
			if err != nil || !ok {
				t.Fatalf("Expected delivery, got %v, %v", ok, err)
			}

			sent := api.calls()
			if len(sent) != 1 {
				t.Fatalf("Expected one call, got %d", len(sent))
			}

			text, found := strings.CutSuffix(sent[0].text, footer)
			if !found {
				t.Fatalf("Expected the footer to be kept in full, got %q", sent[0].text)
			}

			wantLen := test.limit - markup.Len(footer) - len(ellipsis)
			if !strings.HasSuffix(text, ellipsis) {
				t.Fatalf("Expected an ellipsis")
			}
			if got := markup.Len(strings.TrimSuffix(text, ellipsis)); got != wantLen {
				t.Errorf("Expected %d characters of text, got %d", wantLen, got)
			}
		})
	}
}

func TestBotNoFooter(t *testing.T) {
	api := &stubBotAPI{}
	b, _ := newTestBot(t, config.TargetConfig{NoFooter: true}, api, Deps{})

	ok, err := b.Publish(context.Background(), testUpdate(strings.Repeat("b", 5000)))
	if err != nil || !ok {
		t.Fatalf("Expected delivery, got %v, %v", ok, err)
	}

	text := api.calls()[0].text
	if strings.Contains(text, "instagram.com") {
		t.Errorf("Expected no footer, got %q", text)
	}
	if got := markup.Len(text); got != messageLimit {
		t.Errorf("Expected the whole limit to be used, got %d", got)
	}
}

func TestBotEscapesAndLinkifiesText(t *testing.T) {
	api := &stubBotAPI{}
	b, _ := newTestBot(t, config.TargetConfig{NoFooter: true, DisablePreview: true}, api, Deps{})

	if _, err := b.Publish(context.Background(), testUpdate("  <b>x</b> & https://example.com  ")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sent := api.calls()[0]
	want := `&lt;b&gt;x&lt;/b&gt; &amp; <a href="https://example.com">https://example.com</a>`
	if sent.text != want {
		t.Errorf("Expected %q, got %q", want, sent.text)
	}
	if sent.preview == nil || sent.preview.IsDisabled == nil || !*sent.preview.IsDisabled {
		t.Errorf("Expected link previews to be disabled")
	}
}

func TestBotRetriesOnceAfterRateLimit(t *testing.T) {
	tooMany := &bot.TooManyRequestsError{Message: "Too Many Requests", RetryAfter: 5}

	tests := []struct {
		name       string
		errs       []error
		wantOK     bool
		wantCalls  int
		wantSleeps []time.Duration
	}{
		{
			name:       "success on retry",
			errs:       []error{tooMany},
			wantOK:     true,
			wantCalls:  2,
			wantSleeps: []time.Duration{6 * time.Second, ratelimiter.DefaultCooldown},
		},
		{
			name:       "second rate limit is a failure",
			errs:       []error{tooMany, tooMany},
			wantCalls:  2,
			wantSleeps: []time.Duration{6 * time.Second, ratelimiter.DefaultCooldown},
		},
		{
			name:       "bad request is not retried",
			errs:       []error{errBadRequest},
			wantCalls:  1,
			wantSleeps: []time.Duration{ratelimiter.DefaultCooldown},
		},
		{
			name:       "success",
			wantOK:     true,
			wantCalls:  1,
			wantSleeps: []time.Duration{ratelimiter.DefaultCooldown},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			api := &stubBotAPI{errs: test.errs}
			b, rec := newTestBot(t, config.TargetConfig{}, api, Deps{})

			ok, err := b.Publish(context.Background(), testUpdate("hello"))
			if ok != test.wantOK {
				t.Errorf("Expected ok=%v, got %v (err %v)", test.wantOK, ok, err)
			}
			if !test.wantOK && err == nil {
				t.Errorf("Expected an error for a failed delivery")
			}

			if got := len(api.calls()); got != test.wantCalls {
				t.Errorf("Expected %d calls, got %d", test.wantCalls, got)
			}

			sleeps := rec.recorded()
			if len(sleeps) != len(test.wantSleeps) {
				t.Fatalf("Expected sleeps %v, got %v", test.wantSleeps, sleeps)
			}
			for i := range sleeps {
				if sleeps[i] != test.wantSleeps[i] {
					t.Errorf("Expected sleep %d to be %v, got %v", i, test.wantSleeps[i], sleeps[i])
				}
			}
		})
	}
}

func TestBotMedia(t *testing.T) {
	image := func(n int) domain.Media {
		return domain.Media{URL: "https://cdn.example/" + strings.Repeat("i", n) + ".jpg", Kind: domain.MediaKindImage}
	}
	video := domain.Media{URL: "https://cdn.example/v.mp4", Kind: domain.MediaKindVideo}

	tests := []struct {
		name        string
		media       []domain.Media
		wantMethods []string
	}{
		{name: "single image", media: []domain.Media{image(1)}, wantMethods: []string{"sendPhoto"}},
		{name: "single video", media: []domain.Media{video}, wantMethods: []string{"sendVideo"}},
		{name: "album", media: []domain.Media{image(1), video, image(2)}, wantMethods: []string{"sendMediaGroup"}},
		{
			name:        "two albums",
			media:       append(repeatMedia(image(1), 10), image(2), image(3)),
			wantMethods: []string{"sendMediaGroup", "sendMediaGroup"},
		},
		{
			name:        "album and a trailing item",
			media:       append(repeatMedia(image(1), 10), video),
			wantMethods: []string{"sendMediaGroup", "sendVideo"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			api := &stubBotAPI{}
			b, _ := newTestBot(t, config.TargetConfig{}, api, Deps{})

			ok, err := b.Publish(context.Background(), testUpdate("caption", test.media...))
			if err != nil || !ok {
				t.Fatalf("Expected delivery, got %v, %v", ok, err)
			}

			sent := api.calls()
			if len(sent) != len(test.wantMethods) {
				t.Fatalf("Expected %d calls, got %d", len(test.wantMethods), len(sent))
			}

			captions := 0
			for i, s := range sent {
				if s.method != test.wantMethods[i] {
					t.Errorf("Expected call %d to be %s, got %s", i, test.wantMethods[i], s.method)
				}

				if strings.HasPrefix(s.text, "caption") {
					captions++
				}
				for _, item := range s.media {
					if mediaCaption(item) != "" {
						captions++
					}
				}
			}

			if captions != 1 {
				t.Errorf("Expected the caption exactly once, got %d", captions)
			}

			if first := sent[0]; len(first.media) > 0 && !strings.HasPrefix(mediaCaption(first.media[0]), "caption") {
				t.Errorf("Expected the caption on the first album item")
			}
		})
	}
}

func repeatMedia(m domain.Media, n int) []domain.Media {
	media := make([]domain.Media, n)
	for i := range media {
		media[i] = m
	}

	return media
}

func mediaCaption(item models.InputMedia) string {
	switch m := item.(type) {
	case *models.InputMediaPhoto:
		return m.Caption
	case *models.InputMediaVideo:
		return m.Caption
	default:
		return ""
	}
}

func TestBotSummarizesLongText(t *testing.T) {
	api := &stubBotAPI{}
	stub := &stubSummarizer{summary: "short version"}
	b, _ := newTestBot(t, config.TargetConfig{NoFooter: true, Summarize: true}, api, Deps{Summarizer: stub})

	media := domain.Media{URL: "https://cdn.example/1.jpg", Kind: domain.MediaKindImage}
	if _, err := b.Publish(context.Background(), testUpdate(strings.Repeat("c", 2000), media)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := api.calls()[0].text; got != "short version" {
		t.Errorf("Expected the summary, got %q", got)
	}
	if len(stub.inputs) != 1 || stub.inputs[0].MaxChars != captionLimit {
		t.Errorf("Expected one summary with the caption budget, got %+v", stub.inputs)
	}

	if _, err := b.Publish(context.Background(), testUpdate("fits")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(stub.inputs) != 1 {
		t.Errorf("Expected no summary for a text that fits")
	}
}

type stubTextSender struct {
	errs  []error
	dests []destination
	texts []string
}

func (s *stubTextSender) SendText(_ context.Context, dest destination, text string) error {
	s.dests = append(s.dests, dest)
	s.texts = append(s.texts, text)

	if len(s.errs) == 0 {
		return nil
	}

	err := s.errs[0]
	s.errs = s.errs[1:]

	return err
}

func TestUserPublish(t *testing.T) {
	floodWait := tgerr.New(420, "FLOOD_WAIT_3")

	tests := []struct {
		name       string
		errs       []error
		wantOK     bool
		wantCalls  int
		wantSleeps []time.Duration
	}{
		{name: "sent", wantOK: true, wantCalls: 1, wantSleeps: []time.Duration{ratelimiter.DefaultCooldown}},
		{
			name:       "flood wait then sent",
			errs:       []error{floodWait},
			wantOK:     true,
			wantCalls:  2,
			wantSleeps: []time.Duration{4 * time.Second, ratelimiter.DefaultCooldown},
		},
		{
			name:       "peer is invalid",
			errs:       []error{tgerr.New(400, "PEER_ID_INVALID")},
			wantCalls:  1,
			wantSleeps: []time.Duration{ratelimiter.DefaultCooldown},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &stubTextSender{errs: test.errs}
			rec := &sleepRecorder{}
			limiter := ratelimiter.New(UserRetryAfter, slog.Default(), ratelimiter.WithSleeper(rec.sleep))

			u, err := newUser("me", config.TargetConfig{Peer: " @channel "}, sender, Deps{Log: slog.Default()}, limiter)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			media := domain.Media{URL: "https://cdn.example/1.jpg", Kind: domain.MediaKindImage}
			ok, err := u.Publish(context.Background(), testUpdate("hello", media))
			if ok != test.wantOK {
				t.Errorf("Expected ok=%v, got %v (err %v)", test.wantOK, ok, err)
			}

			if len(sender.texts) != test.wantCalls {
				t.Fatalf("Expected %d sends, got %d", test.wantCalls, len(sender.texts))
			}
			if sender.dests[0].peer != "@channel" {
				t.Errorf("Expected trimmed peer, got %q", sender.dests[0].peer)
			}
			if !strings.HasPrefix(sender.texts[0], "hello\n\n<i>") {
				t.Errorf("Expected text and footer, got %q", sender.texts[0])
			}

			sleeps := rec.recorded()
			if len(sleeps) != len(test.wantSleeps) {
				t.Fatalf("Expected sleeps %v, got %v", test.wantSleeps, sleeps)
			}
			for i := range sleeps {
				if sleeps[i] != test.wantSleeps[i] {
					t.Errorf("Expected sleep %d to be %v, got %v", i, test.wantSleeps[i], sleeps[i])
				}
			}
		})
	}
}

func TestUserPublishesToChatID(t *testing.T) {
	sender := &stubTextSender{}
	limiter := ratelimiter.New(UserRetryAfter, slog.Default(), ratelimiter.WithSleeper((&sleepRecorder{}).sleep))

	u, err := newUser("me", config.TargetConfig{ChatID: -1001234567890}, sender, Deps{Log: slog.Default()}, limiter)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ok, err := u.Publish(context.Background(), testUpdate("hello")); !ok || err != nil {
		t.Fatalf("Expected delivery, got ok=%v err=%v", ok, err)
	}

	if len(sender.dests) != 1 || sender.dests[0].chatID != -1001234567890 || sender.dests[0].peer != "" {
		t.Fatalf("Expected the chat id destination, got %+v", sender.dests)
	}
	if got := sender.dests[0].String(); got != "-1001234567890" {
		t.Errorf("Expected chat id as string, got %q", got)
	}
}

func TestMatchesChatID(t *testing.T) {
	channel := &tg.InputPeerChannel{ChannelID: 1234567890, AccessHash: 99}
	group := &tg.InputPeerChat{ChatID: 42}
	user := &tg.InputPeerUser{UserID: 7, AccessHash: 1}

	tests := []struct {
		name   string
		peer   tg.InputPeerClass
		chatID int64
		want   bool
	}{
		{name: "channel by bot api id", peer: channel, chatID: -1001234567890, want: true},
		{name: "channel by plain id", peer: channel, chatID: 1234567890, want: true},
		{name: "channel is not a group", peer: channel, chatID: -1234567890},
		{name: "group by bot api id", peer: group, chatID: -42, want: true},
		{name: "user by id", peer: user, chatID: 7, want: true},
		{name: "other id", peer: user, chatID: 8},
		{name: "self is skipped", peer: &tg.InputPeerSelf{}, chatID: 7},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := matchesChatID(test.peer, test.chatID); got != test.want {
				t.Errorf("Expected %v, got %v", test.want, got)
			}
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	deps := Deps{Log: slog.Default()}

	tests := []struct {
		name    string
		cfg     config.TargetConfig
		wantErr error
	}{
		{name: "unknown kind", cfg: config.TargetConfig{Kind: "fax"}, wantErr: ErrUnknownKind},
		{name: "bot without token", cfg: config.TargetConfig{Kind: KindBot, ChatID: 1}},
		{name: "bot without chat", cfg: config.TargetConfig{Kind: KindBot, BotToken: "1:abc"}},
		{name: "user without credentials", cfg: config.TargetConfig{Kind: KindUser, Peer: "@x"}},
		{name: "user without peer or chat", cfg: config.TargetConfig{Kind: KindUser, APIID: 1, APIHash: "h", Session: "s.json"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.name, test.cfg, deps)
			if err == nil {
				t.Fatalf("Expected an error")
			}
			if test.wantErr != nil && !errors.Is(err, test.wantErr) {
				t.Errorf("Expected %v, got %v", test.wantErr, err)
			}
		})
	}

	d, err := New("log", config.TargetConfig{Kind: KindDummy}, deps)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ok, _ := d.Publish(context.Background(), testUpdate("x")); !ok {
		t.Errorf("Expected the dummy target to deliver")
	}
}
