// Package assistant runs the turn-taking loop: wait for an activation phrase,
// capture one query, send it to the chat model and speak the reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "log/slog"

	"llamavox/internal/transcribe"
)

// Greeting is spoken when an activation phrase is heard.
const Greeting = "Hello!"

type State int

const (
	StateCalibrating State = iota
	StateAwaitingActivation
	StateListeningForQuery
	StateDispatching
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateCalibrating:
		return "CALIBRATING"
	case StateAwaitingActivation:
		return "AWAITING_ACTIVATION"
	case StateListeningForQuery:
		return "LISTENING_FOR_QUERY"
	case StateDispatching:
		return "DISPATCHING"
	case StateResponding:
		return "RESPONDING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Listener interface {
	Calibrate(ctx context.Context) error
	Listen(ctx context.Context) (string, error)
}

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Chat must always return something to say.
type Chat interface {
	Query(ctx context.Context, prompt string) string
}

// Notifier is told when the query window opens.
type Notifier interface {
	Listening(ctx context.Context)
}

type Config struct {
	ActivationPhrases []string
	Pause             time.Duration // between loop iterations
	Notifier          Notifier      // optional
}

type Controller struct {
	listener Listener
	speaker  Speaker
	chat     Chat
	notifier Notifier
	phrases  map[string]struct{}
	pause    time.Duration
	trigger  chan struct{}

	state     State
	activated bool
	query     string
	reply     string
}

func New(listener Listener, speaker Speaker, chat Chat, cfg Config) *Controller {
	phrases := make(map[string]struct{}, len(cfg.ActivationPhrases))
	for _, p := range cfg.ActivationPhrases {
		if p = fold(p); p != "" {
			phrases[p] = struct{}{}
		}
	}

	return &Controller{
		listener: listener,
		speaker:  speaker,
		chat:     chat,
		notifier: cfg.Notifier,
		phrases:  phrases,
		pause:    cfg.Pause,
		trigger:  make(chan struct{}, 1),
		state:    StateCalibrating,
	}
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Activated() bool { return c.activated }

// Trigger opens the query window at the next activation check without a
// spoken phrase. Safe to call from any goroutine; repeated calls coalesce.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run calibrates once and then loops until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Calibrate(ctx); err != nil {
		return err
	}

	log.Info("Assistant ready", "phrases", c.phraseList())

	for {
		c.Iterate(ctx)

		if err := sleep(ctx, c.pause); err != nil {
			return err
		}
	}
}

func (c *Controller) Calibrate(ctx context.Context) error {
	c.state = StateCalibrating
	if err := c.listener.Calibrate(ctx); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	c.state = StateAwaitingActivation
	return nil
}

// Iterate runs one loop iteration: transitions from AWAITING_ACTIVATION
// until the machine is back there. A panic inside is logged and the
// machine is reset.
func (c *Controller) Iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Unexpected failure during turn", "state", c.state, "panic", r)
			c.reset()
		}
	}()

	if c.state == StateCalibrating {
		c.state = StateAwaitingActivation
	}

	for {
		c.state = c.step(ctx)
		if c.state == StateAwaitingActivation || ctx.Err() != nil {
			return
		}
	}
}

func (c *Controller) step(ctx context.Context) State {
	switch c.state {
	case StateAwaitingActivation:
		return c.awaitActivation(ctx)

	case StateListeningForQuery:
		return c.listenForQuery(ctx)

	case StateDispatching:
		log.Info("Processing your request...")
		c.reply = c.chat.Query(ctx, c.query)
		return StateResponding

	case StateResponding:
		c.speak(ctx, c.reply)
		c.reset()
		return StateAwaitingActivation

	default:
		c.reset()
		return StateAwaitingActivation
	}
}

func (c *Controller) awaitActivation(ctx context.Context) State {
	select {
	case <-c.trigger:
		log.Info("Activated by trigger")
		return c.activate(ctx)
	default:
	}

	log.Info("Listening for activation phrase...")

	text, err := c.listener.Listen(ctx)
	if err != nil {
		logListenError("activation", err)
		return StateAwaitingActivation
	}

	log.Info("Detected text", "text", text)

	if !c.matches(text) {
		log.Info("Activation phrase not detected")
		return StateAwaitingActivation
	}

	log.Info("Activation phrase detected")
	return c.activate(ctx)
}

func (c *Controller) activate(ctx context.Context) State {
	c.activated = true
	c.speak(ctx, Greeting)
	return StateListeningForQuery
}

func (c *Controller) listenForQuery(ctx context.Context) State {
	if c.notifier != nil {
		c.notifier.Listening(ctx)
	}

	log.Info("Listening for your request...")

	text, err := c.listener.Listen(ctx)
	if err != nil {
		logListenError("query", err)
		c.reset()
		return StateAwaitingActivation
	}

	log.Info("You said", "text", text)

	c.query = text
	return StateDispatching
}

// speak absorbs synthesis failures; the Speaker has already logged them.
func (c *Controller) speak(ctx context.Context, text string) {
	if err := c.speaker.Speak(ctx, text); err != nil {
		log.Debug("Continuing without speech", "err", err)
	}
}

func (c *Controller) reset() {
	c.activated = false
	c.query = ""
	c.reply = ""
	c.state = StateAwaitingActivation
}

func (c *Controller) matches(text string) bool {
	_, ok := c.phrases[fold(text)]
	return ok
}

func (c *Controller) phraseList() []string {
	out := make([]string, 0, len(c.phrases))
	for p := range c.phrases {
		out = append(out, p)
	}
	return out
}

// fold lower-cases an utterance, drops the punctuation recognizers like to
// add ("Hey, llama.") and collapses whitespace.
func fold(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(".,!?;:", r) {
			return ' '
		}
		return r
	}, strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

func logListenError(stage string, err error) {
	switch {
	case errors.Is(err, transcribe.ErrServiceUnavailable):
		log.Error("Speech recognition service error", "stage", stage, "err", err)
	case errors.Is(err, transcribe.ErrUnintelligible):
		log.Info("Could not understand the audio", "stage", stage)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debug("Listening interrupted", "stage", stage, "err", err)
	default:
		log.Error("Failed to capture audio", "stage", stage, "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
