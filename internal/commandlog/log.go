// Package commandlog implements the append-only, line-delimited command
// and event journal described in spec.md §4.6: the substrate that lets a
// fresh engine reproduce a live one's book state by replaying the same
// commands in the same order.
//
// It is grounded on the framing discipline of the teacher codebase's
// segment-rotating entry WAL (infra/wal/entry) — append-then-fsync-free
// writes, directory creation on first open — simplified to a single
// growing file with JSON Lines framing instead of binary CRC'd segments,
// per the line-delimited-record contract spec.md §6 specifies.
package commandlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Log is a single append-only JSONL file guarded by a mutex; writers
// serialize, and the file is opened once for the lifetime of the log.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	logger *zap.Logger
}

// Open opens (creating if absent) the log file at path, creating its
// parent directory if needed.
func Open(path string, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.Info("command log opened", zap.String("path", path))
	return &Log{path: path, file: f, writer: bufio.NewWriter(f), logger: logger}, nil
}

// Path returns the file path this log was opened with.
func (l *Log) Path() string { return l.path }

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

func (l *Log) appendLine(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := l.writer.Write(line); err != nil {
		return err
	}
	return l.writer.Flush()
}

// AppendCommand persists kind/payload as a new command record, generating
// a commandId that event records produced by applying it can reference.
// It returns that commandId.
func (l *Log) AppendCommand(kind CommandKind, payload any, nowMs int64) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	commandID := uuid.NewString()
	rec := Record{
		EntryType:   EntryCommand,
		TimestampMs: nowMs,
		CommandID:   commandID,
		Kind:        kind,
		Payload:     body,
	}
	if err := l.appendLine(rec); err != nil {
		return "", err
	}
	return commandID, nil
}

// AppendEvent persists an informational event record referencing the
// command that produced it. Event records are never replayed as commands
// (spec.md §4.6 "the event record is informational and ignored on read").
func (l *Log) AppendEvent(commandID string, payload any, nowMs int64) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return l.appendLine(Record{
		EntryType:   EntryEvent,
		TimestampMs: nowMs,
		CommandID:   commandID,
		Payload:     body,
	})
}

// ReadCommands returns every command record in file order. A missing file
// yields an empty list, not an error. Corrupt or partial lines are
// silently skipped and counted in skipped.
func ReadCommands(path string) (commands []Record, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if rec.EntryType != EntryCommand {
			continue
		}
		commands = append(commands, rec)
	}
	if err := scanner.Err(); err != nil {
		return commands, skipped, err
	}
	return commands, skipped, nil
}
