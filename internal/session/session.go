// Package session owns the output folder of one tool run:
// <root>/<date>/<time>[: note], holding the figures and a log.txt of
// everything reported along the way.
package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Session struct {
	Dir     string
	RunID   uuid.UUID
	Started time.Time

	logger zerolog.Logger
	book   []string
}

// New creates the output folder for a run starting now.
func New(root, note string, logger zerolog.Logger) (*Session, error) {
	return NewAt(root, note, time.Now(), logger)
}

// NewAt is New with an explicit start time.
func NewAt(root, note string, at time.Time, logger zerolog.Logger) (*Session, error) {
	name := at.Format("15:04:05")
	if note != "" {
		name += ": " + note
	}
	dir := filepath.Join(root, at.Format("2006-Jan-02"), name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	id := uuid.New()
	s := &Session{
		Dir:     dir,
		RunID:   id,
		Started: at,
		logger:  logger.With().Str("run", id.String()).Logger(),
	}
	s.book = append(s.book, at.Format("2006-Jan-02 15:04:05")+"\n")
	if note != "" {
		s.book = append(s.book, note+"\n")
	}

	return s, nil
}

// Path returns the path of name inside the session folder.
func (s *Session) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Logger returns the session logger.
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// Logf records a line in the log book and logs it.
func (s *Session) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	s.book = append(s.book, line)
	s.logger.Info().Msg(strings.TrimRight(line, "\n"))
}

// Book returns the lines recorded so far.
func (s *Session) Book() []string {
	return append([]string(nil), s.book...)
}

// Close writes log.txt.
func (s *Session) Close() error {
	f, err := os.Create(s.Path("log.txt"))
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range s.book {
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	return f.Close()
}
