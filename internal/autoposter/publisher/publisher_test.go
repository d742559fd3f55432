package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/notify"
)

type captureNotifier struct{ got []notify.Message }

func (c *captureNotifier) Send(ctx context.Context, msg notify.Message) error {
	c.got = append(c.got, msg)
	return nil
}

func (c *captureNotifier) Channel() notify.Channel { return notify.ChannelWebhook }

func TestFormatPost(t *testing.T) {
	post := content.Post{
		ID:           12,
		Title:        "Copom mantém a Selic",
		Excerpt:      "<p>Taxa   fica em <b>10,5%</b></p>",
		CategoryName: "Economia",
		IsBreaking:   true,
		PublishedAt:  time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
	}
	msg := FormatPost(post, "https://portal.example/")

	if msg.ID != "12" || msg.Category != "Economia" || !msg.Breaking {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Body != "Taxa fica em 10,5%" {
		t.Errorf("Body = %q", msg.Body)
	}
	if want := "https://portal.example/noticias/12-copom-mantem-a-selic"; msg.URL != want {
		t.Errorf("URL = %q, want %q", msg.URL, want)
	}
}

func TestAnnounce_UsesRegisteredChannels(t *testing.T) {
	d := notify.NewDispatcher()
	c := &captureNotifier{}
	d.Register(c)

	p := NewPublisher(d, "")
	if err := p.Announce(context.Background(), content.Post{ID: 1, Title: "Teste"}); err != nil {
		t.Fatal(err)
	}
	if len(c.got) != 1 || c.got[0].URL != "" {
		t.Fatalf("unexpected messages: %+v", c.got)
	}

	if err := NewPublisher(notify.NewDispatcher(), "").Announce(context.Background(), content.Post{}); err != nil {
		t.Fatalf("empty dispatcher should be a no-op: %v", err)
	}
}
