package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/groovify/beatsync/internal/song"
)

var ErrEmptyCommand = errors.New("empty player command")

const DefaultCommand = "mpv --no-video --really-quiet --start={start} {url}"

// Command expands a player command template for s starting at start.
// Placeholders: {url}, {start} (seconds), {title}.
func Command(template string, s song.Song, start time.Duration) []string {
	fields := strings.Fields(template)
	r := strings.NewReplacer(
		"{url}", s.GithubURL,
		"{start}", strconv.FormatFloat(start.Seconds(), 'f', 3, 64),
		"{title}", s.String(),
	)

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, r.Replace(f))
	}
	return out
}

// Exec plays songs through an external command. Seeking restarts the
// command at the new position. Exit status 0 means the song ended.
type Exec struct {
	template string
	clock    clock.Clock
	logger   zerolog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	current  *song.Song
	base     time.Duration
	started  time.Time
	gen      uint64
	finished func(string, error)
}

func NewExec(template string, clk clock.Clock, logger zerolog.Logger) *Exec {
	if strings.TrimSpace(template) == "" {
		template = DefaultCommand
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Exec{
		template: template,
		clock:    clk,
		logger:   logger.With().Str("component", "audio").Str("player", "exec").Logger(),
	}
}

func (p *Exec) OnFinished(f func(string, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = f
}

func (p *Exec) Play(ctx context.Context, s song.Song) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = &s
	return p.spawn(ctx, 0)
}

func (p *Exec) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNotPlaying
	}
	return p.spawn(context.Background(), max(pos, 0))
}

func (p *Exec) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.current = nil
	return p.kill()
}

func (p *Exec) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0
	}
	return p.base + p.clock.Since(p.started)
}

func (p *Exec) spawn(ctx context.Context, start time.Duration) error {
	p.gen++
	if err := p.kill(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to stop previous player")
	}

	args := Command(p.template, *p.current, start)
	if len(args) == 0 {
		return ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", args[0], err)
	}

	p.cmd = cmd
	p.base = start
	p.started = p.clock.Now()
	p.logger.Debug().Strs("args", args).Int("pid", cmd.Process.Pid).Msg("player started")

	go p.wait(cmd, p.gen, p.current.ID)
	return nil
}

func (p *Exec) wait(cmd *exec.Cmd, gen uint64, id string) {
	err := cmd.Wait()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.cmd = nil
	p.current = nil
	finished := p.finished
	p.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("player exited: %w", err)
	}
	if finished != nil {
		finished(id, err)
	}
}

func (p *Exec) kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	cmd := p.cmd
	p.cmd = nil
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
