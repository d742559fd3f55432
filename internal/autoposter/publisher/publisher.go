// Package publisher announces freshly published posts on the configured
// notification channels.
package publisher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/notify"
	"github.com/RobinCoderZhao/portal-autopost/pkg/scraper"
)

// Publisher formats posts and sends them via notification channels.
type Publisher struct {
	dispatcher *notify.Dispatcher
	channels   []notify.Channel
	siteURL    string
}

// NewPublisher creates a publisher. With no channels, every registered
// channel of the dispatcher is used.
func NewPublisher(dispatcher *notify.Dispatcher, siteURL string, channels ...notify.Channel) *Publisher {
	return &Publisher{
		dispatcher: dispatcher,
		channels:   channels,
		siteURL:    strings.TrimRight(siteURL, "/"),
	}
}

// Announce sends one message about post.
func (p *Publisher) Announce(ctx context.Context, post content.Post) error {
	msg := FormatPost(post, p.siteURL)
	if len(p.channels) == 0 {
		return p.dispatcher.SendAll(ctx, msg)
	}
	return p.dispatcher.Dispatch(ctx, p.channels, msg)
}

// FormatPost converts a post into a notification message.
func FormatPost(post content.Post, siteURL string) notify.Message {
	msg := notify.Message{
		ID:          strconv.FormatInt(post.ID, 10),
		Title:       post.Title,
		Body:        scraper.Truncate(scraper.CleanSnippet(post.Excerpt), 280),
		Format:      "plain",
		ImageURL:    post.ImageURL,
		Category:    post.CategoryName,
		Breaking:    post.IsBreaking,
		PublishedAt: post.PublishedAt,
	}
	if siteURL != "" && post.ID > 0 {
		msg.URL = fmt.Sprintf("%s/noticias/%d-%s", siteURL, post.ID, content.Slugify(post.Title))
	}
	return msg
}
