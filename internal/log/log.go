package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelErr     Level = "error"
	LevelSuccess Level = "success"
)

type contextKey struct{}

var Levels = []string{string(LevelDebug), string(LevelInfo), string(LevelWarn), string(LevelErr)}

var severity = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelSuccess: 1,
	LevelWarn:    2,
	LevelErr:     3,
}

type Logger struct {
	level           Level
	fields          []zapcore.Field
	interactiveOnly bool
	style           *lipgloss.Style
	formatter       func(l Logger, level Level, msg string, err error) string
	writer          io.Writer
}

// With returns a new context with the given logger added to the context.
func With(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// From returns the logger associated with the given context.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return New()
}

func New() Logger {
	return Logger{
		level:     LevelInfo,
		formatter: BasicFormatter,
		writer:    os.Stderr,
	}
}

// ParseLevel validates a level name given on the command line.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := severity[l]; !ok || l == LevelSuccess {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

func (l Logger) WithLevel(level Level) Logger {
	l2 := l.Copy()
	l2.level = level
	return l2
}

func (l Logger) WithInteractiveOnly() Logger {
	l2 := l.Copy()
	l2.interactiveOnly = true
	return l2
}

func (l Logger) WithStyle(style lipgloss.Style) Logger {
	l2 := l.Copy()
	l2.style = &style
	return l2
}

func (l Logger) With(fields ...zapcore.Field) Logger {
	l2 := l.Copy()
	l2.fields = append(append([]zapcore.Field{}, l.fields...), fields...)
	return l2
}

func (l Logger) WithFormatter(formatter func(l Logger, level Level, msg string, err error) string) Logger {
	l2 := l.Copy()
	l2.formatter = formatter
	return l2
}

func (l Logger) WithWriter(w io.Writer) Logger {
	l2 := l.Copy()
	l2.writer = w
	return l2
}

func (l Logger) Copy() Logger {
	return Logger{
		level:           l.level,
		fields:          l.fields,
		interactiveOnly: l.interactiveOnly,
		style:           l.style,
		formatter:       l.formatter,
		writer:          l.writer,
	}
}

func (l Logger) enabled(level Level) bool {
	return severity[level] >= severity[l.level]
}

func (l Logger) log(level Level, msg string, fields []zapcore.Field) {
	if !l.enabled(level) {
		return
	}

	fields = append(append([]zapcore.Field{}, l.fields...), fields...)

	msg, err, fields := getMessage(msg, fields)

	l.Println(l.format(level, msg, err) + fieldsToJSON(fields))
}

func (l Logger) Debug(msg string, fields ...zapcore.Field) {
	l.log(LevelDebug, msg, fields)
}

func (l Logger) Debugf(format string, a ...any) {
	l.Debug(fmt.Sprintf(format, a...))
}

func (l Logger) Info(msg string, fields ...zapcore.Field) {
	l.log(LevelInfo, msg, fields)
}

func (l Logger) Infof(format string, a ...any) {
	l.Info(fmt.Sprintf(format, a...))
}

func (l Logger) Warn(msg string, fields ...zapcore.Field) {
	l.log(LevelWarn, msg, fields)
}

func (l Logger) Warnf(format string, a ...any) {
	l.Warn(fmt.Sprintf(format, a...))
}

func (l Logger) Error(msg string, fields ...zapcore.Field) {
	l.log(LevelErr, msg, fields)
}

func (l Logger) Errorf(format string, a ...any) {
	l.Error(fmt.Sprintf(format, a...))
}

func (l Logger) Success(msg string, fields ...zapcore.Field) {
	l.log(LevelSuccess, msg, fields)
}

func (l Logger) Successf(format string, a ...any) {
	l.Success(fmt.Sprintf(format, a...))
}

func (l Logger) Printf(format string, a ...any) {
	l.Println(fmt.Sprintf(format, a...))
}

func (l Logger) PrintfStyled(style lipgloss.Style, format string, a ...any) {
	l.PrintlnUnstyled(style.Render(fmt.Sprintf(format, a...)))
}

func (l Logger) Println(s string) {
	l.Print(s + "\n")
}

func (l Logger) Print(s string) {
	if l.interactiveOnly && !IsInteractive() {
		return
	}
	if l.style != nil {
		s = l.style.Render(s)
	}
	fmt.Fprint(l.writer, s)
}

func (l Logger) PrintlnUnstyled(a any) {
	if l.interactiveOnly && !IsInteractive() {
		return
	}
	fmt.Fprintln(l.writer, a)
}

func (l Logger) format(level Level, msg string, err error) string {
	return l.formatter(l, level, msg, err)
}

// IsInteractive reports whether stdout is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

/**
 * Formatters
 */

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#679FE1")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBE331")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	debugStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func BasicFormatter(l Logger, level Level, msg string, err error) string {
	switch level {
	case LevelDebug:
		return debugStyle.Render(msg)
	case LevelInfo:
		return infoStyle.Render(msg)
	case LevelWarn:
		return warnStyle.Render(msg)
	case LevelErr:
		return errorStyle.Render(msg)
	case LevelSuccess:
		return successStyle.Render(msg)
	}

	return ""
}

func PrefixedFormatter(l Logger, level Level, msg string, err error) string {
	prefix := ""

	switch level {
	case LevelDebug:
		prefix = debugStyle.Render("DEBUG\t")
	case LevelInfo, LevelSuccess:
		prefix = infoStyle.Render("INFO\t")
	case LevelWarn:
		prefix = warnStyle.Render("WARN\t")
	case LevelErr:
		prefix = errorStyle.Render("ERROR\t")
	}

	return prefix + msg
}

// PlainFormatter renders the bare message; used when output is not a terminal
// and in tests.
func PlainFormatter(l Logger, level Level, msg string, err error) string {
	return msg
}

/**
 * Utilities
 */

func getMessage(msg string, fields []zapcore.Field) (string, error, []zapcore.Field) {
	fields, err := findError(fields)
	if err != nil {
		if msg == "" {
			msg = err.Error()
		} else {
			fields = append(fields, zap.Error(err))
		}
	}

	return msg, err, fields
}

func findError(fields []zapcore.Field) ([]zapcore.Field, error) {
	var err error
	filteredFields := []zapcore.Field{}
	for _, field := range fields {
		if field.Type == zapcore.ErrorType {
			if foundErr, ok := field.Interface.(error); ok && err == nil {
				err = foundErr
				continue
			}
		}
		filteredFields = append(filteredFields, field)
	}

	return filteredFields, err
}

func fieldsToJSON(fields []zapcore.Field) string {
	if len(fields) == 0 {
		return ""
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}

	if len(enc.Fields) == 0 {
		return ""
	}

	data, err := json.Marshal(enc.Fields)
	if err != nil {
		return ""
	}

	return "\t" + string(data)
}
