package core

// Logger is implemented by all logging backends (std console, rollbar).
// Extra args may carry an error, a map of context values or the acting
// user.User; backends decide what to do with each.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
