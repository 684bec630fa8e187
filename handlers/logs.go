package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"marquee/internal/auth"
)

const (
	defaultLogLines = 500
	maxLogLines     = 5000
	logChunkSize    = 64 * 1024
)

// LogsHandler exposes the tail of the server log file to the master account.
type LogsHandler struct {
	fs      afero.Fs
	logFile string
}

func NewLogsHandler(fs afero.Fs, logFile string) *LogsHandler {
	return &LogsHandler{fs: fs, logFile: logFile}
}

// Tail returns the last ?lines= lines of the log file as plain text.
func (h *LogsHandler) Tail(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSession(r)
	if !ok || !session.IsMaster {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "master account required"})
		return
	}
	if h.logFile == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no log file configured"})
		return
	}

	n := defaultLogLines
	if v := strings.TrimSpace(r.URL.Query().Get("lines")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lines must be a positive integer"})
			return
		}
		n = min(parsed, maxLogLines)
	}

	lines, err := h.tail(n)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, strings.Join(lines, "\n"))
}

func (h *LogsHandler) tail(n int) ([]string, error) {
	f, err := h.fs.Open(h.logFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return lastLines(f, stat.Size(), n)
}

// lastLines reads backwards in chunks until n complete lines are collected.
func lastLines(r io.ReaderAt, size int64, n int) ([]string, error) {
	if size == 0 || n <= 0 {
		return nil, nil
	}

	var lines []string
	var partial []byte
	pos := size

	for pos > 0 && len(lines) < n {
		readSize := min(int64(logChunkSize), pos)
		pos -= readSize

		chunk := make([]byte, readSize)
		if _, err := r.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return nil, err
		}
		chunk = append(chunk, partial...)

		parts := bytes.Split(chunk, []byte("\n"))
		partial = parts[0]
		for i := len(parts) - 1; i > 0 && len(lines) < n; i-- {
			line := string(bytes.TrimRight(parts[i], "\r"))
			if line == "" && i == len(parts)-1 && len(lines) == 0 {
				// trailing newline
				continue
			}
			lines = append(lines, line)
		}
	}
	if len(partial) > 0 && len(lines) < n {
		lines = append(lines, string(bytes.TrimRight(partial, "\r")))
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
