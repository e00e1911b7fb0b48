package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/application"
	"github.com/zjrosen/nametags/internal/config"
	"github.com/zjrosen/nametags/internal/log"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.File.Dir = t.TempDir()
	cfg.Cache.CleanupInterval = 10 * time.Millisecond

	rt, err := application.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	var out bytes.Buffer
	return newShell(rt, &out), &out
}

// execAll runs each line and returns what the shell printed.
func execAll(t *testing.T, sh *shell, out *bytes.Buffer, lines ...string) string {
	t.Helper()
	sh.mu.Lock()
	out.Reset()
	sh.mu.Unlock()
	for _, line := range lines {
		require.False(t, sh.exec(context.Background(), line), "line %q", line)
	}
	return out.String()
}

func TestShell_EditAndChat(t *testing.T) {
	sh, out := newTestShell(t)

	got := execAll(t, sh, out,
		"join Steve",
		"create vip",
		"select steve vip",
		"edit steve vip",
		"arm steve prefix",
		"say steve &6[VIP] ",
		"say steve hello there",
	)

	require.Contains(t, got, "Steve joined")
	require.Contains(t, got, "tag vip created")
	require.Contains(t, got, "steve now wears vip")
	require.Contains(t, got, "prefix of vip set to [VIP] ")
	require.Contains(t, got, "[VIP] Steve: hello there")
}

func TestShell_ColorEdit(t *testing.T) {
	sh, out := newTestShell(t)
	execAll(t, sh, out, "join steve", "create vip", "edit steve vip", "arm steve color")

	require.Contains(t, execAll(t, sh, out, "say steve gold"), "color of vip set to gold")

	execAll(t, sh, out, "edit steve vip", "arm steve color")
	require.Contains(t, execAll(t, sh, out, "say steve gold"), "is already that")

	execAll(t, sh, out, "edit steve vip", "arm steve color")
	require.Contains(t, execAll(t, sh, out, "say steve CANCEL"), "edit of vip cancelled")

	require.Contains(t, execAll(t, sh, out, "show vip"), "color:  gold")
}

func TestShell_ChatWithoutSessionIsPlain(t *testing.T) {
	sh, out := newTestShell(t)
	got := execAll(t, sh, out, "join steve", "say steve clear")
	require.Contains(t, got, "steve: clear")
}

func TestShell_Errors(t *testing.T) {
	sh, out := newTestShell(t)

	require.Contains(t, execAll(t, sh, out, "frobnicate"), "unknown command frobnicate")
	require.Contains(t, execAll(t, sh, out, "create"), "usage: create <tag>")
	require.Contains(t, execAll(t, sh, out, "say steve"), "usage: say <player> <message>")
	require.Contains(t, execAll(t, sh, out, "edit steve vip"), application.ErrPlayerOffline.Error())

	execAll(t, sh, out, "join steve")
	require.Contains(t, execAll(t, sh, out, "arm steve prefix"), "no modification session")
	require.Contains(t, execAll(t, sh, out, "arm steve none"), "usage: arm")
	require.Contains(t, execAll(t, sh, out, "edit steve ghost"), application.ErrTagNotFound.Error())
	require.Contains(t, execAll(t, sh, out, "create vip", "create vip"), application.ErrTagExists.Error())
	require.Contains(t, execAll(t, sh, out, "logs maybe"), "usage: logs")
}

func TestShell_TagLifecycle(t *testing.T) {
	sh, out := newTestShell(t)

	got := execAll(t, sh, out, "create vip", "save vip", "tags", "delete vip", "tags")
	require.Contains(t, got, "tag vip saved")
	require.Contains(t, got, "vip: ...")
	require.Contains(t, got, "tag vip deleted")
	require.Contains(t, got, "no tags cached")
}

func TestShell_PlayersAndQuit(t *testing.T) {
	sh, out := newTestShell(t)

	got := execAll(t, sh, out, "players", "join alex", "players", "quit alex", "players", "quit alex")
	require.Equal(t, 2, strings.Count(got, "no players online"))
	require.Contains(t, got, "  alex  -")
	require.Contains(t, got, "alex left")
	require.Contains(t, got, "alex is not online")
}

func TestShell_Unselect(t *testing.T) {
	sh, out := newTestShell(t)

	got := execAll(t, sh, out, "join steve", "unselect steve", "create vip", "select steve vip", "unselect steve")
	require.Contains(t, got, "steve has no tag")
	require.Contains(t, got, "steve's tag removed")
}

func TestShell_RunStopsOnExitAndEOF(t *testing.T) {
	sh, out := newTestShell(t)

	require.NoError(t, sh.run(context.Background(), strings.NewReader("join steve\nexit\njoin alex\n")))
	require.Contains(t, out.String(), "steve joined")
	require.NotContains(t, out.String(), "alex joined")

	require.NoError(t, sh.run(context.Background(), strings.NewReader("help\n")))
	require.Contains(t, out.String(), "arm <player> <prefix|suffix|color>")
}

func TestShell_LogTailByCategory(t *testing.T) {
	log.InitWithWriter(io.Discard, log.LevelDebug)
	t.Cleanup(func() { log.SetEnabled(false) })
	sh, out := newTestShell(t)

	require.Contains(t, execAll(t, sh, out, "logs on registry"), "log tail on for registry")
	require.False(t, sh.exec(context.Background(), "create vip"))

	require.Eventually(t, func() bool {
		sh.mu.Lock()
		defer sh.mu.Unlock()
		return strings.Contains(out.String(), "[registry] Tag created tag=vip")
	}, time.Second, 5*time.Millisecond)

	require.Contains(t, execAll(t, sh, out, "logs off"), "log tail off")
}

func TestShell_HelpListsEveryCommand(t *testing.T) {
	sh, out := newTestShell(t)
	got := execAll(t, sh, out, "help")
	for name := range sh.commands {
		require.Contains(t, got, sh.commands[name].usage)
	}
}

func TestMessageAfter(t *testing.T) {
	require.Equal(t, "hello  world", messageAfter("say steve hello  world", 2))
	require.Equal(t, "&6[VIP] ", messageAfter("  say   steve &6[VIP] ", 2))
	require.Equal(t, "", messageAfter("say steve", 2))
}

func TestBackendCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(path))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "backend", "sqlite"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "storage backend set to sqlite")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "backend: sqlite")
	require.Contains(t, string(data), "# Durable storage for players and tags", "comments survive")

	rootCmd.SetArgs([]string{"--config", path, "backend", "mongodb"})
	require.Error(t, rootCmd.Execute())
}
