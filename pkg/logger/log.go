package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type LogStatus int

const (
	VERBOSE LogStatus = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

var levelNames = map[string]LogStatus{
	"verbose": VERBOSE,
	"debug":   DEBUG,
	"info":    INFO,
	"warning": WARNING,
	"warn":    WARNING,
	"error":   ERROR,
}

func (e LogStatus) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

// Level returns the numeric severity of this status, suitable
// for use with SetMinLoggingLevel.
func (e LogStatus) Level() int { return int(e) }

func (e LogStatus) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),                //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

// ParseLevel converts a human readable level name (e.g. "debug") in to
// a LogStatus. Unknown names resolve to INFO.
func ParseLevel(name string) LogStatus {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level
	}

	return INFO
}

type Logger interface {
	Emit(LogStatus, string, ...interface{})
	Verbosef(string, ...interface{})
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
	Fatalf(string, ...interface{})
	Printf(string, ...interface{})
	Fatal(...interface{})
	Print(...interface{})
	Println(...interface{})
}

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogStatus, message string, interpolations ...interface{}) {
	Log.Emit(status, l.name, message, interpolations...)
}

func (l *loggerImpl) Verbosef(message string, args ...interface{}) { l.Emit(VERBOSE, message, args...) }
func (l *loggerImpl) Debugf(message string, args ...interface{})   { l.Emit(DEBUG, message, args...) }
func (l *loggerImpl) Infof(message string, args ...interface{})    { l.Emit(INFO, message, args...) }
func (l *loggerImpl) Warnf(message string, args ...interface{})    { l.Emit(WARNING, message, args...) }
func (l *loggerImpl) Errorf(message string, args ...interface{})   { l.Emit(ERROR, message, args...) }

// Printf emits at INFO level. Present so that loggers can be handed to
// libraries (goose) which expect a Printf/Fatalf logger.
func (l *loggerImpl) Printf(message string, args ...interface{}) {
	l.Emit(INFO, ensureNewline(message), args...)
}

// Fatalf emits at FATAL level. Unlike the standard library it does NOT exit
// the process; callers are expected to return an error.
func (l *loggerImpl) Fatalf(message string, args ...interface{}) {
	l.Emit(FATAL, ensureNewline(message), args...)
}

func (l *loggerImpl) Fatal(args ...interface{}) { l.Emit(FATAL, "%s\n", fmt.Sprint(args...)) }
func (l *loggerImpl) Print(args ...interface{}) { l.Emit(INFO, "%s\n", fmt.Sprint(args...)) }
func (l *loggerImpl) Println(args ...interface{}) {
	l.Emit(INFO, "%s", fmt.Sprintln(args...))
}

type LoggerManager interface {
	GetLogger(string) Logger
	Emit(LogStatus, string, string, ...interface{})
}

var Log LoggerManager = &loggerMgr{
	offset:   0,
	minLevel: INFO,
	out:      color.Output,
}

type loggerMgr struct {
	sync.Mutex
	offset   int
	minLevel LogStatus
	out      io.Writer
}

func (l *loggerMgr) GetLogger(name string) Logger {
	return &loggerImpl{name: name}
}

func (l *loggerMgr) Emit(status LogStatus, name string, message string, interpolations ...interface{}) {
	l.Lock()
	defer l.Unlock()
	if status < l.minLevel {
		return
	}

	l.setNameOffset(len(name))
	padding := strings.Repeat(" ", l.offset-len(name))
	msg := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, fmt.Sprintf(message, interpolations...))

	status.Color().Fprint(l.out, msg)
}

func (l *loggerMgr) setNameOffset(offset int) {
	if offset > l.offset {
		l.offset = offset
	}
}

func Get(name string) Logger {
	return Log.GetLogger(name)
}

// SetMinLoggingLevel sets the minimum level a log must be to be
// emitted. Logs below this level are discarded silently.
func SetMinLoggingLevel(level int) {
	if mgr, ok := Log.(*loggerMgr); ok {
		mgr.Lock()
		mgr.minLevel = LogStatus(level)
		mgr.Unlock()
	}
}

// SetOutput redirects all log output to the writer provided. Passing
// nil restores output to stdout.
func SetOutput(w io.Writer) {
	if mgr, ok := Log.(*loggerMgr); ok {
		mgr.Lock()
		if w == nil {
			w = os.Stdout
		}
		mgr.out = w
		mgr.Unlock()
	}
}

func ensureNewline(message string) string {
	if strings.HasSuffix(message, "\n") {
		return message
	}

	return message + "\n"
}
