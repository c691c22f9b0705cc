/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package logger

import (
	"context"
	"fmt"
	"log/syslog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	logcfg "github.com/nabbar/vessel/logger/config"
	logtps "github.com/nabbar/vessel/logger/types"
	"github.com/sirupsen/logrus"
)

// writerHook is a minimal logtps.Hook that formats every accepted entry and
// writes it to a single underlying io.Writer, guarded by a mutex since
// logrus may fire concurrently from multiple goroutines.
type writerHook struct {
	mu  sync.Mutex
	out *os.File
	own bool
	lvl []logrus.Level
	fmt logrus.Formatter
	run atomic.Bool
}

func (h *writerHook) Levels() []logrus.Level {
	return h.lvl
}

func (h *writerHook) Fire(e *logrus.Entry) error {
	b, err := h.fmt.Format(e)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.out.Write(b)
	return err
}

func (h *writerHook) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.out.Write(p)
}

func (h *writerHook) Close() error {
	if !h.own {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.out.Close()
}

func (h *writerHook) RegisterHook(log *logrus.Logger) {
	log.AddHook(h)
}

func (h *writerHook) Run(ctx context.Context) {
	h.run.Store(true)
	defer h.run.Store(false)

	<-ctx.Done()
}

func (h *writerHook) IsRunning() bool {
	return h.run.Load()
}

func newStdHook(std *logcfg.OptionsStd, out *os.File, lvl []logrus.Level, formatter logrus.Formatter) (logtps.Hook, error) {
	if std != nil && std.DisableStandard {
		lvl = nil
	}

	return &writerHook{
		out: out,
		own: false,
		lvl: lvl,
		fmt: formatter,
	}, nil
}

func newFileHook(opt logcfg.OptionsFile, formatter logrus.Formatter) (logtps.Hook, error) {
	if opt.CreatePath {
		if err := os.MkdirAll(filepath.Dir(opt.Filepath), opt.PathMode.FileMode()); err != nil {
			return nil, fmt.Errorf("logger: cannot create log path %q: %w", filepath.Dir(opt.Filepath), err)
		}
	}

	flags := os.O_WRONLY | os.O_APPEND
	if opt.Create {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(opt.Filepath, flags, opt.FileMode.FileMode())
	if err != nil {
		return nil, fmt.Errorf("logger: cannot open log file %q: %w", opt.Filepath, err)
	}

	return &writerHook{
		out: f,
		own: true,
		lvl: logLevelsFromNames(opt.LogLevel),
		fmt: formatter,
	}, nil
}

// syslogHook forwards formatted entries to the local or remote syslog daemon.
type syslogHook struct {
	mu  sync.Mutex
	wrt *syslog.Writer
	lvl []logrus.Level
	fmt logrus.Formatter
	run atomic.Bool
}

func (h *syslogHook) Levels() []logrus.Level {
	return h.lvl
}

func (h *syslogHook) Fire(e *logrus.Entry) error {
	b, err := h.fmt.Format(e)
	if err != nil {
		return err
	}

	msg := string(b)

	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return h.wrt.Crit(msg)
	case logrus.ErrorLevel:
		return h.wrt.Err(msg)
	case logrus.WarnLevel:
		return h.wrt.Warning(msg)
	case logrus.InfoLevel:
		return h.wrt.Info(msg)
	default:
		return h.wrt.Debug(msg)
	}
}

func (h *syslogHook) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.wrt.Write(p)
}

func (h *syslogHook) Close() error {
	return h.wrt.Close()
}

func (h *syslogHook) RegisterHook(log *logrus.Logger) {
	log.AddHook(h)
}

func (h *syslogHook) Run(ctx context.Context) {
	h.run.Store(true)
	defer h.run.Store(false)

	<-ctx.Done()
}

func (h *syslogHook) IsRunning() bool {
	return h.run.Load()
}

func newSyslogHook(opt logcfg.OptionsSyslog, formatter logrus.Formatter) (logtps.Hook, error) {
	facility := syslogFacility(opt.Facility)

	w, err := syslog.Dial(opt.Network, opt.Host, facility|syslog.LOG_INFO, opt.Tag)
	if err != nil {
		return nil, fmt.Errorf("logger: cannot dial syslog %q/%q: %w", opt.Network, opt.Host, err)
	}

	return &syslogHook{
		wrt: w,
		lvl: logLevelsFromNames(opt.LogLevel),
		fmt: formatter,
	}, nil
}

func syslogFacility(name string) syslog.Priority {
	switch name {
	case "kern":
		return syslog.LOG_KERN
	case "mail":
		return syslog.LOG_MAIL
	case "daemon":
		return syslog.LOG_DAEMON
	case "auth":
		return syslog.LOG_AUTH
	case "cron":
		return syslog.LOG_CRON
	case "local0":
		return syslog.LOG_LOCAL0
	case "local1":
		return syslog.LOG_LOCAL1
	case "local2":
		return syslog.LOG_LOCAL2
	case "local3":
		return syslog.LOG_LOCAL3
	case "local4":
		return syslog.LOG_LOCAL4
	case "local5":
		return syslog.LOG_LOCAL5
	case "local6":
		return syslog.LOG_LOCAL6
	case "local7":
		return syslog.LOG_LOCAL7
	default:
		return syslog.LOG_USER
	}
}

func logLevelsFromNames(names []string) []logrus.Level {
	if len(names) == 0 {
		return logrus.AllLevels
	}

	lvl := make([]logrus.Level, 0, len(names))
	for _, n := range names {
		if l, err := logrus.ParseLevel(n); err == nil {
			lvl = append(lvl, l)
		}
	}

	if len(lvl) == 0 {
		return logrus.AllLevels
	}

	return lvl
}
