// Package router turns Telegram updates into handler calls: slash commands
// through a command tree, inline-button callbacks by "prefix:action:payload",
// and every other message through a fallback handler.
//
// Updates from the same user in the same chat are always handled in arrival
// order by the same worker.
package router

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "studybot/internal/runtime/supervisor"
	kit "studybot/internal/transport"
	"studybot/pkg/logx"
	"studybot/pkg/tgui"
)

var ErrBusy = errors.New("router queue full")

type Command struct {
	// Route is a space-separated command path, e.g. "lessons" or "lessons list".
	Route       string
	Aliases     []string
	Description string
	Usage       string
	// Hidden commands are routed but left out of the Telegram menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Prefix  string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update   kit.Update
	Message  *kit.Message  // nil for callbacks
	Callback *kit.Callback // nil for messages
	Chat     kit.ChatTarget
	FromID   int64
	Command  string // route, "cb:prefix:action" or "message"
	Path     []string
	Args     []string
	RawArgs  []string
	Flags    map[string]string
	Bools    map[string]bool
	Payload  string
	ReqID    string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type Options struct {
	// Workers defaults to 4. Each worker owns a queue of QueueSize jobs.
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	Registry       *rtsup.Registry
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	opts    Options

	mu       sync.RWMutex
	root     *cmdNode
	alias    map[string]*cmdNode
	cmds     []Command
	fallback HandlerFunc
	unknown  HandlerFunc
	errReply func(req *Request) string

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute

	runMu   sync.RWMutex
	running bool
	queues  []chan func()
	sup     *rtsup.Supervisor

	dropped atomic.Uint64
}

func New(adapter kit.Adapter, log logx.Logger, opts Options) *Router {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	return &Router{
		log:       log.OrNop().Component("telegram.router"),
		adapter:   adapter,
		opts:      opts,
		root:      newRoot(),
		alias:     map[string]*cmdNode{},
		callbacks: map[string]map[string]CallbackRoute{},
	}
}

// SetRegistry replaces the command and callback tables.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	root := newRoot()
	alias := map[string]*cmdNode{}
	kept := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		root.add(route, c)
		kept = append(kept, c)

		leaf := root
		for _, tok := range route {
			leaf, _ = leaf.child(tok)
		}
		// "/lessons_list" reaches "lessons list". The plain single-token name
		// is never aliased, or subcommand traversal would be skipped.
		if name := sanitizeTelegramCommand(strings.Join(route, "_")); len(route) > 1 && name != "" {
			if _, exists := alias[name]; !exists {
				alias[name] = leaf
			}
		}
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" && !strings.Contains(a, " ") {
				alias[a] = leaf
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, rt := range cbs {
		p, a := strings.TrimSpace(rt.Prefix), strings.TrimSpace(rt.Action)
		if p == "" || a == "" || rt.Handle == nil {
			continue
		}
		if cb[p] == nil {
			cb[p] = map[string]CallbackRoute{}
		}
		cb[p][a] = rt
	}

	r.mu.Lock()
	r.root, r.alias, r.cmds = root, alias, kept
	r.mu.Unlock()

	r.cbMu.Lock()
	r.callbacks = cb
	r.cbMu.Unlock()
}

// SetFallback handles every message that is not a slash command.
func (r *Router) SetFallback(h HandlerFunc) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// SetUnknown handles slash commands with no route.
func (r *Router) SetUnknown(h HandlerFunc) {
	r.mu.Lock()
	r.unknown = h
	r.mu.Unlock()
}

// SetErrorReply sets the text sent to the user when a handler fails.
func (r *Router) SetErrorReply(fn func(req *Request) string) {
	r.mu.Lock()
	r.errReply = fn
	r.mu.Unlock()
}

// PublishMenu pushes the command list to the adapter when it supports menus.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	r.mu.RLock()
	menu := buildMenuCommands(r.cmds)
	r.mu.RUnlock()

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(cctx, menu)
}

func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.RLock()
	defer r.runMu.RUnlock()
	return r.sup
}

// Dropped counts updates rejected because a worker queue was full.
func (r *Router) Dropped() uint64 { return r.dropped.Load() }

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	queues := make([]chan func(), r.opts.Workers)
	for i := range queues {
		queues[i] = make(chan func(), r.opts.QueueSize)
	}

	r.runMu.Lock()
	r.running, r.queues, r.sup = true, queues, sup
	r.runMu.Unlock()
	r.opts.Registry.Set("telegram.router", sup)

	for i, q := range queues {
		idx, q := i, q
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			r.workerLoop(c, idx, q)
			return nil
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithPublishFirstError(true))
	}
	r.log.Info("dispatcher started", logx.Int("workers", len(queues)), logx.Int("queue_cap", r.opts.QueueSize))

	defer func() {
		r.runMu.Lock()
		r.running = false
		for _, q := range queues {
			close(q)
		}
		r.runMu.Unlock()

		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()

		r.opts.Registry.Delete("telegram.router")
		r.runMu.Lock()
		r.queues, r.sup = nil, nil
		r.runMu.Unlock()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

func (r *Router) workerLoop(ctx context.Context, idx int, q <-chan func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q:
			if !ok {
				return
			}
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

// Route dispatches one update. Without a running DispatchLoop the handler
// runs inline, which tests rely on.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}

	r.mu.RLock()
	root, alias, fallback, unknown := r.root, r.alias, r.fallback, r.unknown
	r.mu.RUnlock()

	if !msg.IsCommand() {
		if fallback != nil {
			r.enqueue(ctx, r.newRequest(up, "message"), fallback, 0)
		}
		return
	}

	parts := tokenizeCommandLine(msg.Text)
	if len(parts) == 0 {
		return
	}
	word := commandWord(parts[0])
	args := parts[1:]

	var (
		cmd  *Command
		path []string
	)
	if leaf, ok := alias[word]; ok && leaf.cmd != nil {
		cmd, path = leaf.cmd, splitRoute(leaf.cmd.Route)
	} else if cur, ok := root.child(word); ok {
		path = []string{word}
		for len(args) > 0 && !strings.HasPrefix(args[0], "--") {
			child, ok := cur.child(strings.ToLower(args[0]))
			if !ok {
				break
			}
			cur, path, args = child, append(path, args[0]), args[1:]
		}
		cmd = cur.cmd
	}

	if cmd == nil {
		if unknown != nil {
			r.enqueue(ctx, r.newRequest(up, word), unknown, 0)
		}
		return
	}

	req := r.newRequest(up, cmd.Route)
	req.Path = path
	req.RawArgs = args
	req.Args, req.Flags, req.Bools = parseFlags(args)
	r.enqueue(ctx, req, cmd.Handle, cmd.Timeout)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	prefix, action, payload, ok := tgui.ParseData(strings.TrimSpace(cb.Data))
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	r.cbMu.RLock()
	rt, ok := r.callbacks[prefix][action]
	r.cbMu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := r.newRequest(up, "cb:"+prefix+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, req *Request) error {
		err := rt.Handle(ctx, req, payload)
		// Stops the client's loading indicator.
		_ = r.adapter.AnswerCallback(context.WithoutCancel(ctx), cb.ID, "")
		return err
	}
	r.enqueue(ctx, req, h, rt.Timeout)
}

func (r *Router) newRequest(up kit.Update, command string) *Request {
	req := &Request{Update: up, Command: command, ReqID: newReqID(), Adapter: r.adapter}
	switch {
	case up.Message != nil:
		m := up.Message
		req.Message = m
		req.Chat = kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
		req.FromID = m.FromID
	case up.Callback != nil:
		c := up.Callback
		req.Callback = c
		req.Chat = kit.ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID}
		req.FromID = c.FromID
	}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int("thread_id", req.Chat.ThreadID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", command),
	)
	return req
}

func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	r.mu.RLock()
	errReply := r.errReply
	r.mu.RUnlock()

	final := Chain(h,
		MWErrorReply(errReply),
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	job := func() { _ = final(ctx, req) }

	r.runMu.RLock()
	if !r.running {
		r.runMu.RUnlock()
		job()
		return
	}
	// Queues are closed under the write lock, so sending under the read
	// lock never hits a closed channel.
	q := r.queues[shard(req.Chat.ChatID, req.FromID, len(r.queues))]
	select {
	case q <- job:
	default:
		r.dropped.Add(1)
		req.Logger.Warn("update dropped", logx.Err(ErrBusy))
	}
	r.runMu.RUnlock()
}

// shard pins a (chat, user) pair to one worker.
func shard(chatID, userID int64, n int) int {
	h := fnv.New32a()
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(chatID >> (8 * i))
		b[8+i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(n))
}
