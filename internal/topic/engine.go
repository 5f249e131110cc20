package topic

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/chat"
	"github.com/caioluan/tabchat/internal/classify"
)

// defaultNamePattern marks a tab as unnamed and eligible for auto-rename.
var defaultNamePattern = regexp.MustCompile(`(?i)^(topic|tab)\s+\d+$`)

// IsDefaultName reports whether a display name still carries the reserved
// unnamed pattern.
func IsDefaultName(name string) bool {
	return defaultNamePattern.MatchString(strings.TrimSpace(name))
}

// classifierInstruction is the fixed contract sent with every transcript.
const classifierInstruction = "Read the chat transcript below and describe its subject in " +
	"2-5 lowercase words with no punctuation. If there is no clear subject, " +
	"reply with exactly: general chat.\n\nTranscript:\n"

// Config tunes the detection engine.
type Config struct {
	MinMessages int           // eligibility threshold, default 5
	MaxMessages int           // transcript size cap, default 15
	Timeout     time.Duration // classifier call budget, default 10s
	Stopwords   Stopwords
}

func (c Config) withDefaults() Config {
	if c.MinMessages <= 0 {
		c.MinMessages = 5
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 15
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Stopwords == nil {
		c.Stopwords = DefaultStopwords()
	}
	return c
}

// TabSource is the slice of the tab manager the engine needs.
type TabSource interface {
	Get(ctx context.Context, tabID string) (*chat.Tab, error)
	Rename(ctx context.Context, tabID, newName string) error
}

// MessageSource is the slice of the sequencer the engine needs.
type MessageSource interface {
	List(ctx context.Context, tabID string, limit int) ([]*chat.Message, error)
}

// Engine runs at-most-once-per-tab background topic detection: it reads a
// tab's recent history, asks the classifier for a name, falls back to the
// deterministic keyword extractor, and applies the rename. Classifier
// failures are fully absorbed; a send can never fail because of detection.
type Engine struct {
	tabs       TabSource
	messages   MessageSource
	classifier classify.Classifier // nil when unconfigured
	bus        *bus.Bus
	logger     *zap.Logger
	cfg        Config

	cache  *Cache
	flight singleflight.Group
	cancel context.CancelFunc
}

// NewEngine creates a detection engine. classifier may be nil, in which
// case only the fallback extractor runs.
func NewEngine(tabs TabSource, messages MessageSource, classifier classify.Classifier, b *bus.Bus, logger *zap.Logger, cfg Config) *Engine {
	return &Engine{
		tabs:       tabs,
		messages:   messages,
		classifier: classifier,
		bus:        b,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		cache:      NewCache(),
	}
}

// Start subscribes to message events on the bus and triggers detection for
// each tab that receives a send.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("message.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if evt.Kind != bus.KindMessageSent {
					continue
				}
				sent, ok := evt.Payload.(bus.MessageSent)
				if !ok {
					continue
				}
				go func() {
					if err := e.Detect(ctx, sent.TabID); err != nil {
						e.logger.Warn("topic detection failed",
							zap.Error(err), zap.String("tab_id", sent.TabID))
					}
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the event loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// State returns the tab's current cached analysis state.
func (e *Engine) State(tabID string) State {
	return e.cache.Current(tabID)
}

// Detect runs detection for a tab if its cached state allows it.
// Concurrent triggers for the same tab collapse into one run.
func (e *Engine) Detect(ctx context.Context, tabID string) error {
	_, err, _ := e.flight.Do(tabID, func() (any, error) {
		return nil, e.analyze(ctx, tabID)
	})
	return err
}

// ManualDetect clears the cached state and re-runs detection. Eligibility
// checks (message count, custom name) still apply.
func (e *Engine) ManualDetect(ctx context.Context, tabID string) error {
	for {
		ran := false
		_, err, _ := e.flight.Do(tabID, func() (any, error) {
			ran = true
			e.cache.Reset(tabID)
			return nil, e.analyze(ctx, tabID)
		})
		if ran {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Joined an automatic pass that was already in flight. Its
		// result stands, but the caller asked for a fresh run, so go
		// again until our own closure executes.
	}
}

func (e *Engine) analyze(ctx context.Context, tabID string) error {
	if e.cache.Current(tabID).IsTerminal() {
		return nil
	}

	tab, err := e.tabs.Get(ctx, tabID)
	if err != nil {
		return err
	}
	if !IsDefaultName(tab.Name) {
		if err := e.cache.Transition(tabID, SkippedCustomName); err != nil {
			return err
		}
		return nil
	}

	candidates, err := e.candidateTexts(ctx, tabID)
	if err != nil {
		return err
	}
	if len(candidates) < e.cfg.MinMessages {
		// Not eligible yet; the next send re-triggers.
		return nil
	}

	if err := e.cache.Transition(tabID, Eligible); err != nil {
		return err
	}
	if err := e.cache.Transition(tabID, Analyzing); err != nil {
		return err
	}
	// Whatever happens below, the tab must not stay in Analyzing.
	defer func() {
		if e.cache.Current(tabID) == Analyzing {
			_ = e.cache.Transition(tabID, Unanalyzed)
		}
	}()

	if len(candidates) > e.cfg.MaxMessages {
		candidates = candidates[len(candidates)-e.cfg.MaxMessages:]
	}

	name := e.classifyTranscript(ctx, candidates)
	if name == "" {
		name = ExtractKeywords(candidates, e.cfg.Stopwords)
	}
	if name == "" {
		if err := e.cache.Transition(tabID, SkippedNoFit); err != nil {
			return err
		}
		e.publishSkipped(tabID)
		return nil
	}

	if err := e.tabs.Rename(ctx, tabID, name); err != nil {
		return fmt.Errorf("apply topic rename: %w", err)
	}
	if err := e.cache.Transition(tabID, Renamed); err != nil {
		return err
	}

	e.logger.Info("tab renamed by topic detection",
		zap.String("tab_id", tabID),
		zap.String("name", name))
	e.bus.Publish(bus.Event{
		Kind:      bus.KindTopicRenamed,
		Timestamp: time.Now(),
		Payload:   map[string]string{"tab_id": tabID, "name": name},
	})
	return nil
}

// candidateTexts returns the tab's non-deleted text message contents in
// send order.
func (e *Engine) candidateTexts(ctx context.Context, tabID string) ([]string, error) {
	msgs, err := e.messages.List(ctx, tabID, 0)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, m := range msgs {
		if m.Deleted || m.Type != chat.MessageText || strings.TrimSpace(m.Content) == "" {
			continue
		}
		texts = append(texts, m.Content)
	}
	return texts, nil
}

// classifyTranscript asks the AI classifier for a name, returning "" on
// any failure so the caller falls through to the keyword extractor.
func (e *Engine) classifyTranscript(ctx context.Context, texts []string) string {
	if e.classifier == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	prompt := classifierInstruction + strings.Join(texts, "\n")
	raw, err := e.classifier.Complete(ctx, prompt, classify.Options{
		Temperature: 0.2,
		MaxTokens:   24,
		TopP:        0.9,
	})
	if err != nil {
		e.logger.Warn("classifier unavailable, using keyword fallback", zap.Error(err))
		return ""
	}
	return postprocess(raw)
}

// postprocess normalizes classifier output: quotes stripped, lowercased,
// at most five words.
func postprocess(raw string) string {
	cleaned := strings.Trim(strings.TrimSpace(raw), `"'`)
	cleaned = strings.ToLower(cleaned)
	words := strings.Fields(cleaned)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

func (e *Engine) publishSkipped(tabID string) {
	e.bus.Publish(bus.Event{
		Kind:      bus.KindTopicSkipped,
		Timestamp: time.Now(),
		Payload:   map[string]string{"tab_id": tabID},
	})
}
