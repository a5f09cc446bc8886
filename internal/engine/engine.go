// Package engine ties the state machine, the debounce aggregator and the
// backend dispatcher into one event-processing pipeline.
package engine

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pochenphys/Group-Project/internal/debounce"
	"github.com/pochenphys/Group-Project/internal/dispatch"
	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/router"
	"github.com/pochenphys/Group-Project/internal/store"
)

// waitDedupTTL is how long a "please wait" push suppresses the next one
// for the same user.
const waitDedupTTL = 10 * time.Second

// Messenger is the slice of the LINE client the engine sends through.
type Messenger interface {
	ReplyOrPush(ctx context.Context, replyToken, userID string, msgs []line.Message) error
	Push(ctx context.Context, to string, msgs []line.Message) error
	PushText(ctx context.Context, to, text string) error
	DownloadContent(ctx context.Context, messageID string) ([]byte, error)
}

// Options wires an Engine.
type Options struct {
	Router       *router.Router
	Dispatcher   *dispatch.Dispatcher
	Backends     []*dispatch.Backend
	Messenger    Messenger
	ContentStore *dispatch.ContentStore

	Images   *store.TTL[[]byte]
	Slots    *store.TTL[map[string]string]
	Analysis *store.TTL[string]

	PublicBaseURL  string
	DebounceWindow time.Duration
	MaxReleases    int64
	CallTimeout    time.Duration
}

// Engine processes normalized events end to end: local state machine
// turns answer inline, image bursts debounce into backend batches, and
// backend side channels land in the TTL stores.
type Engine struct {
	router       *router.Router
	dispatcher   *dispatch.Dispatcher
	backends     []*dispatch.Backend
	messenger    Messenger
	contentStore *dispatch.ContentStore

	images   *store.TTL[[]byte]
	slots    *store.TTL[map[string]string]
	analysis *store.TTL[string]
	waitSent *store.TTL[struct{}]

	aggregator    *debounce.Aggregator
	publicBaseURL string
	callTimeout   time.Duration
}

// New builds the Engine and its aggregator.
func New(opts Options) *Engine {
	e := &Engine{
		router:        opts.Router,
		dispatcher:    opts.Dispatcher,
		backends:      opts.Backends,
		messenger:     opts.Messenger,
		contentStore:  opts.ContentStore,
		images:        opts.Images,
		slots:         opts.Slots,
		analysis:      opts.Analysis,
		waitSent:      store.NewTTL[struct{}](waitDedupTTL),
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		callTimeout:   opts.CallTimeout,
	}
	if e.callTimeout <= 0 {
		e.callTimeout = dispatch.DefaultTimeout
	}
	e.aggregator = debounce.New(opts.DebounceWindow, opts.MaxReleases, e.releaseImages)
	return e
}

// Stop flushes pending image batches.
func (e *Engine) Stop() { e.aggregator.Stop() }

func (e *Engine) byRole(roles ...string) []*dispatch.Backend {
	var out []*dispatch.Backend
	for _, b := range e.backends {
		for _, role := range roles {
			if b.Role == role {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// HandleEvents processes one webhook delivery in order. It never
// returns an error: each event degrades independently to a logged
// failure so the others still get answered.
func (e *Engine) HandleEvents(ctx context.Context, events []line.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case line.EventText:
			msgs := e.router.HandleText(ctx, ev.UserID, ev.Text)
			e.deliver(ctx, ev, msgs)
		case line.EventPostback:
			e.handlePostback(ctx, ev)
		case line.EventImage:
			e.handleImage(ctx, ev)
		case line.EventOther:
			e.handleOther(ctx, ev)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, ev line.Event, msgs []line.Message) {
	if len(msgs) == 0 {
		return
	}
	if err := e.messenger.ReplyOrPush(ctx, ev.ReplyToken, ev.UserID, msgs); err != nil {
		slog.Error("delivery failed", "user", ev.UserID, "error", err)
	}
}

func (e *Engine) handleImage(ctx context.Context, ev line.Event) {
	mode := e.router.Mode(ev.UserID)
	if mode != router.ModeRecipe && mode != router.ModeRecord {
		e.deliver(ctx, ev, []line.Message{router.ImageGuidance()})
		return
	}
	e.maybeSendWait(ctx, ev.UserID)
	e.aggregator.Offer(ev)
}

func (e *Engine) handleOther(ctx context.Context, ev line.Event) {
	switch ev.MessageType {
	case "video", "audio", "file":
		e.deliver(ctx, ev, []line.Message{router.UnsupportedMedia()})
	default:
		slog.Debug("ignoring event", "user", ev.UserID, "type", ev.MessageType)
	}
}

// maybeSendWait pushes the "please wait" notice at most once per dedup
// window per user.
func (e *Engine) maybeSendWait(ctx context.Context, userID string) {
	if _, ok := e.waitSent.Get(userID); ok {
		return
	}
	e.waitSent.Set(userID, struct{}{})
	if err := e.messenger.PushText(ctx, userID, "請稍等，正在處理您的圖片..."); err != nil {
		slog.Warn("wait notice failed", "user", userID, "error", err)
	}
}

// releaseImages is the aggregator callback: one debounced batch, one
// backend round trip. It runs on a detached goroutine, so delivery goes
// through the push fallback path when the reply token has gone stale.
func (e *Engine) releaseImages(userID string, events []line.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout+10*time.Second)
	defer cancel()

	mode := e.router.Mode(userID)
	var targets []*dispatch.Backend
	switch mode {
	case router.ModeRecipe:
		targets = e.byRole(dispatch.RoleAI, dispatch.RoleRecipe)
	case router.ModeRecord:
		targets = e.byRole(dispatch.RoleRecord)
	default:
		// Mode expired between offer and release.
		e.deliver(ctx, events[0], []line.Message{router.ImageGuidance()})
		return
	}
	if len(targets) == 0 {
		slog.Error("no backend configured for mode", "mode", mode.String())
		e.messenger.PushText(ctx, userID, "處理圖片時發生錯誤，請稍後再試。")
		return
	}

	batch, images := e.downloadBatch(ctx, userID, events)
	if len(images) == 0 {
		e.messenger.PushText(ctx, userID, "處理圖片時發生錯誤，請稍後再試。")
		return
	}

	res := e.dispatcher.Dispatch(ctx, targets, batch, images)
	msgs := append(res.Messages, e.harvest(userID, res.Replies)...)
	if len(msgs) == 0 {
		e.messenger.PushText(ctx, userID, "處理圖片時發生錯誤，請稍後再試。")
		return
	}
	e.deliver(ctx, batch, msgs)
}

// downloadBatch fetches every image of the burst and synthesizes the
// batch event the backends see. Individual download failures shrink the
// batch instead of voiding it.
func (e *Engine) downloadBatch(ctx context.Context, userID string, events []line.Event) (line.Event, [][]byte) {
	batch := events[len(events)-1]
	batch.ImageSet = nil
	batch.MessageIDs = nil

	var images [][]byte
	for _, ev := range events {
		data, err := e.messenger.DownloadContent(ctx, ev.MessageID)
		if err != nil {
			slog.Warn("image download failed", "user", userID, "message", ev.MessageID, "error", err)
			continue
		}
		images = append(images, data)
		batch.MessageIDs = append(batch.MessageIDs, ev.MessageID)
	}
	return batch, images
}

// harvest pulls side-channel state out of backend replies: dish slots
// and analysis text into their stores, generated recipes and images to
// the content store, image bytes into the temp-image store with a
// public link minted for each.
func (e *Engine) harvest(userID string, replies []*dispatch.Reply) []line.Message {
	var extra []line.Message
	for _, reply := range replies {
		if len(reply.RecipeSlots) > 0 {
			slots := reply.RecipeSlots
			e.slots.Update(userID, func(cur map[string]string, ok bool) (map[string]string, bool) {
				if !ok {
					cur = make(map[string]string, len(slots))
				}
				for k, v := range slots {
					cur[k] = v
				}
				return cur, true
			})
		}
		if reply.AnalysisText != "" {
			e.analysis.Set(userID, reply.AnalysisText)
		}
		if reply.GeneratedRecipe != nil {
			e.persistRecipe(userID, *reply.GeneratedRecipe)
		}
		for _, b64 := range reply.GeneratedImages {
			data, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				slog.Warn("bad generated image payload", "user", userID, "error", err)
				continue
			}
			id := uuid.NewString()
			e.images.Set(id, data)
			e.persistImage(id, data)
			if e.publicBaseURL != "" {
				extra = append(extra, line.ImageMessage(e.publicBaseURL+"/temp_image/"+id))
			}
		}
	}
	return extra
}

// persistRecipe archives generated content, best effort and off the
// request path.
func (e *Engine) persistRecipe(userID string, rec dispatch.GeneratedRecipe) {
	if !e.contentStore.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.contentStore.StoreRecipe(ctx, userID, rec); err != nil {
			slog.Warn("recipe persist failed", "user", userID, "error", err)
		}
	}()
}

func (e *Engine) persistImage(id string, data []byte) {
	if !e.contentStore.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.contentStore.StoreImage(ctx, id, data); err != nil {
			slog.Warn("image persist failed", "image", id, "error", err)
		}
	}()
}

// ProcessEvent answers one normalized event synchronously, for the
// process_message API surface. Image events are queued through the
// aggregator and acknowledged with no messages.
func (e *Engine) ProcessEvent(ctx context.Context, ev line.Event) []line.Message {
	switch ev.Kind {
	case line.EventText:
		return e.router.HandleText(ctx, ev.UserID, ev.Text)
	case line.EventPostback:
		return e.postbackMessages(ctx, ev)
	case line.EventImage:
		e.handleImage(ctx, ev)
		return nil
	default:
		switch ev.MessageType {
		case "video", "audio", "file":
			return []line.Message{router.UnsupportedMedia()}
		}
		return nil
	}
}
