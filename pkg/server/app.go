package server

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/crystal-mush/kmud/pkg/events"
	"github.com/crystal-mush/kmud/pkg/gamedb"
	"github.com/crystal-mush/kmud/pkg/service"
	"golang.org/x/time/rate"
)

// App is what transports call into. It owns the connection manager and
// turns channel events into interpreter runs and queued output.
type App struct {
	cfg     Config
	conns   *ConnManager
	reg     *command.Registry
	svc     *service.Services
	texts   *TextFiles
	metrics *Metrics
}

// NewApp wires an App. texts and metrics may be nil.
func NewApp(cfg Config, reg *command.Registry, svc *service.Services, texts *TextFiles, metrics *Metrics) *App {
	if texts == nil {
		texts = LoadTextFiles("")
	}
	if metrics == nil {
		metrics = NewMetrics(time.Now())
	}
	app := &App{
		cfg:     cfg,
		conns:   NewConnManager(cfg.CloseGrace),
		reg:     reg,
		svc:     svc,
		texts:   texts,
		metrics: metrics,
	}
	if svc.Events != nil {
		svc.Events.SubscribeGlobal(&announcer{app: app})
	}
	return app
}

// Conns returns the connection manager.
func (a *App) Conns() *ConnManager { return a.conns }

// Services returns the services commands run against.
func (a *App) Services() *service.Services { return a.svc }

// OnNewConnection registers a channel with a fresh anonymous session and
// queues the welcome text. A full server refuses the channel.
func (a *App) OnNewConnection(ch Channel) (*ConnContext, bool) {
	if a.cfg.MaxConns > 0 && a.conns.Count() >= a.cfg.MaxConns {
		log.Printf("[%s] Refused connection from %s: server full", ch.ID(), ch.RemoteAddr())
		full := a.texts.Full()
		if full == "" {
			full = "Sorry, the server is full. Try again later."
		}
		ch.Write(full)
		ch.Close()
		return nil, false
	}

	sess := a.svc.Sessions.NewSession()
	env := &command.Env{Session: sess, Services: a.svc, Registry: a.reg}
	cc := a.conns.Register(ch, sess, command.NewInterpreter(a.reg, env))
	if a.cfg.InputRate > 0 {
		cc.Limiter = rate.NewLimiter(rate.Limit(a.cfg.InputRate), a.cfg.InputBurst)
	}

	log.Printf("[%s] New connection from %s (%s)", ch.ID(), ch.RemoteAddr(), ch.Transport())
	a.metrics.connOpened(ch.Transport())
	a.conns.EnqueueOutbound(ch.ID(), a.texts.Connect())
	a.svc.Events.Emit(events.Event{Type: events.EvConnect, Session: sess, Text: ch.RemoteAddr()})
	return cc, true
}

// OnData runs one input line for a channel and queues the response. Chain
// results are followed up to ChainDepth hops; an Exit result queues a
// close behind the goodbye text. Blank lines are ignored. It returns the
// queued text.
func (a *App) OnData(id ChannelID, line string) string {
	if strings.TrimSpace(line) == "" {
		return ""
	}
	cc, ok := a.conns.Lookup(id)
	if !ok {
		return ""
	}
	if cc.Limiter != nil && !cc.Limiter.Allow() {
		a.metrics.rateLimited.Inc()
		msg := "You're typing too fast, slow down."
		a.conns.EnqueueOutbound(id, msg)
		return msg
	}
	DebugLog("[%s] CMD: %s", id, line)

	cc.mu.Lock()
	defer cc.mu.Unlock()

	var parts []string
	res := cc.Interp.Process(line)
	for hops := 0; ; hops++ {
		a.metrics.result(res)
		if text := Present(res); text != "" {
			parts = append(parts, text)
		}
		parts = cc.takeNotices(parts)
		if res.Status != command.StatusChain {
			break
		}
		if hops >= a.cfg.ChainDepth {
			log.Printf("[%s] chain to %q not followed: depth %d reached", id, res.Chain, a.cfg.ChainDepth)
			break
		}
		DebugLog("[%s] CHAIN: %s", id, res.Chain)
		res = cc.Interp.Process(res.Chain)
	}

	if res.Status == command.StatusExit {
		if quit := a.texts.Quit(); quit != "" {
			parts = append(parts, quit)
		}
	}
	out := strings.Join(parts, "\n")
	if out != "" {
		a.conns.EnqueueOutbound(id, out)
	}
	if res.Status == command.StatusExit {
		log.Printf("[%s] %s quit", id, displayName(cc))
		a.conns.EnqueueClose(id)
	}
	return out
}

// OnClose forgets a channel once its transport is gone.
func (a *App) OnClose(id ChannelID) {
	cc, ok := a.conns.Unregister(id)
	if !ok {
		return
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.feed != nil {
		cc.feed.closed.Store(true)
		a.svc.Events.Unsubscribe(cc.feed.account, cc.feed)
		cc.feed = nil
	}
	log.Printf("[%s] Disconnected %s after %s", id, displayName(cc), time.Since(cc.ConnTime).Truncate(time.Second))
	a.metrics.connClosed(cc.Channel.Transport())
	a.svc.Events.Emit(events.Event{Type: events.EvDisconnect, Account: cc.Session.Account.ID, Session: cc.Session})
	a.svc.Sessions.Remove(cc.Session)
}

// OnTick drains the queues, up to DrainPerTick steps, stopping early
// once a step does nothing.
func (a *App) OnTick() DrainStats {
	var total DrainStats
	for i := 0; i < a.cfg.DrainPerTick; i++ {
		st := a.conns.DrainOnce()
		total.add(st)
		if st.Idle() {
			break
		}
	}
	out, closes := a.conns.QueueDepth()
	a.metrics.drained(total, out, closes)
	return total
}

// AutoLogin logs a channel's session into an account without a password.
// The websocket transport uses it for token holders.
func (a *App) AutoLogin(id ChannelID, accountID int) error {
	cc, ok := a.conns.Lookup(id)
	if !ok {
		return fmt.Errorf("auto-login: unknown channel %s", id)
	}
	acct, err := a.svc.Accounts.ByID(accountID)
	if err != nil {
		return fmt.Errorf("auto-login: account %d: %w", accountID, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if err := a.svc.Sessions.Login(cc.Session, acct); err != nil {
		return fmt.Errorf("auto-login: %w", err)
	}
	parts := cc.takeNotices([]string{fmt.Sprintf("Welcome back, %s.", acct.Login)})
	a.conns.EnqueueOutbound(id, strings.Join(parts, "\n"))
	return nil
}

// WhoEntry describes one connection for the who listing.
type WhoEntry struct {
	Name      string `json:"name"`
	Account   string `json:"account,omitempty"`
	Transport string `json:"transport"`
	Online    string `json:"online"`
}

// Who lists the logged-in connections, oldest first. Each session is read
// under its connection's lock, so a line being processed finishes first.
func (a *App) Who() []WhoEntry {
	ctxs := a.conns.Contexts()
	sortByConnTime(ctxs)
	var out []WhoEntry
	for _, cc := range ctxs {
		cc.mu.Lock()
		if cc.Session.LoggedIn() {
			out = append(out, WhoEntry{
				Name:      displayName(cc),
				Account:   cc.Session.Account.Login,
				Transport: cc.Channel.Transport(),
				Online:    time.Since(cc.ConnTime).Truncate(time.Second).String(),
			})
		}
		cc.mu.Unlock()
	}
	return out
}

func sortByConnTime(ctxs []*ConnContext) {
	sort.Slice(ctxs, func(i, j int) bool { return ctxs[i].ConnTime.Before(ctxs[j].ConnTime) })
}

func displayName(cc *ConnContext) string {
	if name := (events.Event{Session: cc.Session}).SessionName(); name != "" {
		return name
	}
	return "anonymous"
}

// takeNotices appends the notices queued while the interpreter ran and
// clears them. cc.mu must be held.
func (cc *ConnContext) takeNotices(parts []string) []string {
	parts = append(parts, cc.notices...)
	cc.notices = nil
	return parts
}

// announcer turns lifecycle events into messages for other players.
// Events are emitted on the goroutine of the connection that caused them,
// which already holds that connection's lock.
type announcer struct {
	app *App
}

func (an *announcer) Closed() bool { return false }

func (an *announcer) Receive(ev events.Event) {
	conns := an.app.conns
	switch ev.Type {
	case events.EvLogin:
		cc, ok := conns.LookupSession(ev.Session)
		if !ok {
			return
		}
		an.follow(cc, ev.Account)
		// The motd goes out after the login reply, see takeNotices.
		if motd := an.app.texts.Motd(); motd != "" {
			cc.notices = append(cc.notices, motd)
		}
	case events.EvPuppet:
		if !ev.Session.Puppeting() {
			return
		}
		msg := fmt.Sprintf("%s has entered the game.", ev.Session.Character.Name)
		if cc, ok := conns.LookupSession(ev.Session); ok {
			conns.BroadcastExcept(cc.ID(), msg)
		} else {
			conns.Broadcast(msg)
		}
	case events.EvDisconnect:
		if ev.Session.Puppeting() {
			conns.Broadcast(fmt.Sprintf("%s has left the game.", ev.Session.Character.Name))
		}
	}
}

// follow moves cc's account feed to account.
func (an *announcer) follow(cc *ConnContext, account int) {
	bus := an.app.svc.Events
	if cc.feed != nil {
		if cc.feed.account == account {
			return
		}
		cc.feed.closed.Store(true)
		bus.Unsubscribe(cc.feed.account, cc.feed)
	}
	cc.feed = &accountFeed{conns: an.app.conns, id: cc.ID(), self: cc.Session, account: account}
	bus.Subscribe(account, cc.feed)
}

// accountFeed tells a connection what its account's other sessions do.
// Receive runs on the other session's goroutine, so it only touches the
// emitting session and the connection manager.
type accountFeed struct {
	conns   *ConnManager
	id      ChannelID
	self    *gamedb.Session
	account int
	closed  atomic.Bool
}

func (f *accountFeed) Closed() bool { return f.closed.Load() }

func (f *accountFeed) Receive(ev events.Event) {
	if ev.Session == f.self {
		return
	}
	var msg string
	switch ev.Type {
	case events.EvLogin:
		msg = "Your account was just logged into from another connection."
	case events.EvCharacter:
		if name, ok := ev.Data["created"].(string); ok {
			msg = fmt.Sprintf("Character %s was created from another connection.", name)
		} else if name, ok := ev.Data["deleted"].(string); ok {
			msg = fmt.Sprintf("Character %s was deleted from another connection.", name)
		}
	}
	if msg != "" {
		f.conns.EnqueueOutbound(f.id, msg)
	}
}
