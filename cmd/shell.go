package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/nametags/internal/application"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/modification"
	"github.com/zjrosen/nametags/internal/sessions"
	"github.com/zjrosen/nametags/internal/ui/styles"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	help  string
	args  int // minimum argument count
	run   func(ctx context.Context, args []string) error
}

// shell is a line-oriented front end over a Runtime. Each player is named
// on the command line so one terminal can drive several players.
type shell struct {
	rt      *application.Runtime
	offline bool
	render  *styles.Renderer

	mu  sync.Mutex
	out io.Writer

	// names maps actor ids back to the names they joined with.
	names map[string]string

	commands map[string]command
	stopLogs context.CancelFunc
}

func newShell(rt *application.Runtime, out io.Writer) *shell {
	s := &shell{
		rt:      rt,
		offline: rt.Config.OfflineMode,
		render:  styles.NewRenderer(out),
		out:     out,
		names:   make(map[string]string),
	}
	s.commands = map[string]command{
		"join":     {"join <player>", "connect a player", 1, s.join},
		"quit":     {"quit <player>", "disconnect a player and save it", 1, s.quit},
		"players":  {"players", "list connected players", 0, s.players},
		"create":   {"create <tag>", "create a tag", 1, s.create},
		"delete":   {"delete <tag>", "delete a tag", 1, s.delete},
		"save":     {"save <tag>", "persist a cached tag now", 1, s.save},
		"tags":     {"tags", "list cached tags", 0, s.tags},
		"show":     {"show <tag>", "show a tag's properties", 1, s.show},
		"select":   {"select <player> <tag>", "display a tag on a player", 2, s.selectTag},
		"unselect": {"unselect <player>", "remove a player's tag", 1, s.unselect},
		"edit":     {"edit <player> <tag>", "open an edit session", 2, s.edit},
		"arm":      {"arm <player> <prefix|suffix|color>", "choose what the next chat line edits", 2, s.arm},
		"say":      {"say <player> <message>", "send a chat line", 2, s.say},
		"logs":     {"logs <on [category]|off>", "tail the log in the shell", 1, s.logs},
	}
	return s
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

// run reads commands until EOF, exit, or ctx is done.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.stopLogTail()

	s.notify(ctx)
	s.printf("%s", s.render.Muted("nametags shell, type help for commands"))

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if s.exec(ctx, line) {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "exit":
		return true
	case "help":
		s.help()
		return false
	}

	c, ok := s.commands[name]
	if !ok {
		s.printf("%s", s.render.Error("unknown command "+name+", type help"))
		return false
	}
	if name == "say" && len(args) >= 2 {
		// Keep the message's own spacing.
		args = []string{args[0], messageAfter(line, 2)}
	}
	if len(args) < c.args {
		s.printf("usage: %s", c.usage)
		return false
	}
	if err := c.run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			s.printf("usage: %s", c.usage)
		} else {
			s.printf("%s", s.render.Error(err.Error()))
		}
		log.Debug(log.CatShell, "Command failed", "command", name, "error", err)
	}
	return false
}

// messageAfter returns line with its first n fields and one separator
// removed, so the rest keeps its spacing.
func messageAfter(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = rest[idx+1:]
	}
	return rest
}

func (s *shell) help() {
	names := make([]string, 0, len(s.commands))
	for n := range s.commands {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		c := s.commands[n]
		fmt.Fprintf(&b, "  %-36s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(&b, "  %-36s %s", "exit", "leave the shell")
	s.printf("%s", b.String())
}

// notify prints session timeouts and tag write-backs as they happen.
func (s *shell) notify(ctx context.Context) {
	expired := s.rt.Sessions.Expirations(ctx)
	writeBacks := s.rt.Tags.Registry().WriteBacks(ctx)
	go func() {
		for {
			select {
			case ev, ok := <-expired:
				if !ok {
					return
				}
				sess := ev.Payload.Session
				s.printf("%s", s.render.Warning(fmt.Sprintf("%s's edit of %s timed out", s.displayName(sess.ActorID), sess.TargetTag)))
			case ev, ok := <-writeBacks:
				if !ok {
					return
				}
				if ev.Payload.Saved {
					s.printf("%s", s.render.Muted("tag "+ev.Payload.ID+" written back"))
				} else {
					s.printf("%s", s.render.Error("tag "+ev.Payload.ID+" could not be written back"))
				}
			}
		}
	}()
}

// actor resolves a typed player name to its actor id.
func (s *shell) actor(name string) string {
	id := application.ResolveActorID(name, s.offline)
	s.mu.Lock()
	if _, ok := s.names[id]; !ok {
		s.names[id] = name
	}
	s.mu.Unlock()
	return id
}

func (s *shell) displayName(actorID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.names[actorID]; ok {
		return n
	}
	return actorID
}

func (s *shell) join(ctx context.Context, args []string) error {
	id := s.actor(args[0])
	player := s.rt.Players.Connect(ctx, id)
	msg := args[0] + " joined"
	if sel := player.Payload().SelectedTag; sel != "" {
		msg += " wearing " + sel
	}
	s.printf("%s", s.render.Success(msg))
	return nil
}

func (s *shell) quit(ctx context.Context, args []string) error {
	id := s.actor(args[0])
	if !s.rt.Players.Online(id) {
		return fmt.Errorf("%s is not online", args[0])
	}
	if err := s.rt.Players.Disconnect(ctx, id); err != nil {
		return err
	}
	s.printf("%s", s.render.Success(args[0]+" left"))
	return nil
}

func (s *shell) players(context.Context, []string) error {
	players := s.rt.Players.List()
	if len(players) == 0 {
		s.printf("%s", s.render.Muted("no players online"))
		return nil
	}
	for _, p := range players {
		sel := p.Payload().SelectedTag
		if sel == "" {
			sel = "-"
		}
		s.printf("  %s  %s", s.displayName(p.ID()), sel)
	}
	return nil
}

func (s *shell) create(ctx context.Context, args []string) error {
	if _, _, err := s.rt.Tags.Create(ctx, args[0]); err != nil {
		return err
	}
	s.printf("%s", s.render.Success("tag "+args[0]+" created"))
	return nil
}

func (s *shell) delete(ctx context.Context, args []string) error {
	if err := s.rt.Tags.Delete(ctx, args[0]); err != nil {
		return err
	}
	s.printf("%s", s.render.Success("tag "+args[0]+" deleted"))
	return nil
}

func (s *shell) save(ctx context.Context, args []string) error {
	if err := s.rt.Tags.Save(ctx, args[0]); err != nil {
		return err
	}
	s.printf("%s", s.render.Success("tag "+args[0]+" saved"))
	return nil
}

func (s *shell) tags(context.Context, []string) error {
	tags := s.rt.Tags.List()
	if len(tags) == 0 {
		s.printf("%s", s.render.Muted("no tags cached"))
		return nil
	}
	for _, t := range tags {
		p := t.Payload()
		s.printf("  %s", s.render.ChatLine(t.ID(), &p, "..."))
	}
	return nil
}

func (s *shell) show(ctx context.Context, args []string) error {
	tag := s.rt.Tags.Find(ctx, args[0])
	if tag == nil {
		return fmt.Errorf("%w: %s", application.ErrTagNotFound, args[0])
	}
	s.printf("%s", s.render.Properties(tag.ID(), tag.Payload()))
	return nil
}

func (s *shell) selectTag(ctx context.Context, args []string) error {
	if err := s.rt.Players.Select(ctx, s.actor(args[0]), args[1]); err != nil {
		return err
	}
	s.printf("%s", s.render.Success(args[0]+" now wears "+args[1]))
	return nil
}

func (s *shell) unselect(_ context.Context, args []string) error {
	had, err := s.rt.Players.Unselect(s.actor(args[0]))
	if err != nil {
		return err
	}
	if !had {
		s.printf("%s", s.render.Muted(args[0]+" has no tag"))
		return nil
	}
	s.printf("%s", s.render.Success(args[0]+"'s tag removed"))
	return nil
}

func (s *shell) edit(ctx context.Context, args []string) error {
	if err := s.rt.Editor.Begin(ctx, s.actor(args[0]), args[1]); err != nil {
		return err
	}
	s.printf("%s", s.render.Success(fmt.Sprintf("%s is editing %s, arm prefix, suffix or color within %s",
		args[0], args[1], s.rt.Sessions.TTL())))
	return nil
}

func (s *shell) arm(_ context.Context, args []string) error {
	c, ok := sessions.ParseContext(args[1])
	if !ok {
		return errUsage
	}
	if err := s.rt.Editor.Arm(s.actor(args[0]), c); err != nil {
		return err
	}
	hint := "type the new " + c.String() + ", clear to remove it, or cancel"
	if c == sessions.ContextColor {
		hint = "type a color name, or cancel"
	}
	s.printf("%s", s.render.Muted(hint))
	return nil
}

func (s *shell) say(ctx context.Context, args []string) error {
	id := s.actor(args[0])
	res, handled, err := s.rt.Editor.Submit(ctx, id, args[1])
	if handled {
		s.printOutcome(res)
		return err
	}
	if err != nil {
		return err
	}

	plate, err := s.rt.Players.Nameplate(ctx, id)
	if err != nil {
		return err
	}
	name := s.displayName(id)
	if !plate.HasTag() {
		s.printf("%s", s.render.ChatLine(name, nil, args[1]))
		return nil
	}
	s.printf("%s", s.render.ChatLine(name, &plate.Properties, args[1]))
	return nil
}

func (s *shell) printOutcome(res modification.Result) {
	field := res.Context.String()
	switch res.Outcome {
	case modification.OutcomeModified:
		msg := field + " of " + res.TagID + " set to "
		switch res.Context {
		case modification.ContextColor:
			msg += s.render.Name(res.After.Color.String(), res.After.Color)
		case modification.ContextPrefix:
			msg += s.render.Text(*res.After.Prefix)
		case modification.ContextSuffix:
			msg += s.render.Text(*res.After.Suffix)
		}
		s.printf("%s", s.render.Success(msg))
	case modification.OutcomeCleared:
		s.printf("%s", s.render.Success(field+" of "+res.TagID+" cleared"))
	case modification.OutcomeUnchanged:
		s.printf("%s", s.render.Warning(field+" of "+res.TagID+" is already that"))
	case modification.OutcomeCancelled:
		s.printf("%s", s.render.Muted("edit of "+res.TagID+" cancelled"))
	case modification.OutcomeInvalidTarget:
		s.printf("%s", s.render.Error("tag "+res.TagID+" no longer exists"))
	case modification.OutcomeProcessCancelled:
		s.printf("%s", s.render.Warning("edit of "+res.TagID+" was rejected"))
	case modification.OutcomeFailed:
		s.printf("%s", s.render.Error(fmt.Sprintf("edit of %s failed: %v", res.TagID, res.Err)))
	}
}

func (s *shell) logs(ctx context.Context, args []string) error {
	switch strings.ToLower(args[0]) {
	case "on":
		s.stopLogTail()
		tailCtx, cancel := context.WithCancel(ctx)
		entries := log.Subscribe(tailCtx)
		if entries == nil {
			cancel()
			return fmt.Errorf("logging is not initialized")
		}
		s.mu.Lock()
		s.stopLogs = cancel
		s.mu.Unlock()
		var only log.Category
		if len(args) > 1 {
			only = log.Category(strings.ToLower(args[1]))
		}
		go func() {
			for ev := range entries {
				if only == "" || ev.Payload.Category == only {
					s.printf("%s", s.render.Muted(ev.Payload.Line))
				}
			}
		}()
		if only != "" {
			s.printf("%s", s.render.Muted("log tail on for "+string(only)))
		} else {
			s.printf("%s", s.render.Muted("log tail on"))
		}
	case "off":
		s.stopLogTail()
		s.printf("%s", s.render.Muted("log tail off"))
	default:
		return errUsage
	}
	return nil
}

func (s *shell) stopLogTail() {
	s.mu.Lock()
	stop := s.stopLogs
	s.stopLogs = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}
