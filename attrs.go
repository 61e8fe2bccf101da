package scopez

// attrKind discriminates instrumentation attributes. The set is
// closed: single-valued kinds overwrite on repeat, list-valued kinds
// accumulate.
type attrKind uint8

const (
	attrMessage attrKind = iota
	attrTarget
	attrLevel
	attrSkip
	attrSkipAll
	attrArgNames
	attrFields
	attrFieldFunc
	attrRedact
	attrLogEnter
	attrLogExit
	attrLogError
	attrLogAll
	attrRet
)

// Attr is one declarative instrumentation attribute, applied when a
// wrapper is built.
type Attr struct {
	fieldFn   func(args []any) any
	retFn     func(v any) any
	text      string
	names     []string
	selectors []any
	fields    []Field
	level     Level
	kind      attrKind
	hasLevel  bool
}

// Message overrides the span message. Default is the wrapped
// function's short name.
func Message(msg string) Attr {
	return Attr{kind: attrMessage, text: msg}
}

// Target overrides the instrumentation target, logged as the "target"
// field. Default is the package-qualified function name.
func Target(target string) Attr {
	return Attr{kind: attrTarget, text: target}
}

// AtLevel overrides the span level. Default is LevelInfo.
func AtLevel(lvl Level) Attr {
	return Attr{kind: attrLevel, level: lvl, hasLevel: true}
}

// Skip removes arguments from the logged view. Selectors may be int
// indexes, names declared via ArgNames, or one []bool mask per call
// shape; anything else panics when the wrapper is built. Indexes count
// the wrapped function's arguments after the context. The real call
// always receives every argument.
func Skip(selectors ...any) Attr {
	return Attr{kind: attrSkip, selectors: selectors}
}

// SkipAll omits the logged argument record entirely.
func SkipAll() Attr {
	return Attr{kind: attrSkipAll}
}

// ArgNames names the wrapped function's arguments after the context,
// for the logged view and for name-based Skip and Redact selectors.
// Go reflection cannot recover parameter names, so the table is
// explicit.
func ArgNames(names ...string) Attr {
	return Attr{kind: attrArgNames, names: names}
}

// WithFields attaches static fields to every span the wrapper opens.
func WithFields(fields ...Field) Attr {
	return Attr{kind: attrFields, fields: fields}
}

// FieldFunc attaches a field computed from the call's arguments.
func FieldFunc(key string, fn func(args []any) any) Attr {
	return Attr{kind: attrFieldFunc, text: key, fieldFn: fn}
}

// Redact masks an argument, or a dotted path into one, with the
// Redacted marker in the logged view only. The first path segment is
// an ArgNames name or an argument index.
func Redact(paths ...string) Attr {
	return Attr{kind: attrRedact, names: paths}
}

// LogEnter emits an event when the span is entered.
func LogEnter() Attr {
	return Attr{kind: attrLogEnter}
}

// LogEnterAt is LogEnter with a custom level and message. An empty
// message keeps the span message.
func LogEnterAt(lvl Level, msg string) Attr {
	return Attr{kind: attrLogEnter, level: lvl, hasLevel: true, text: msg}
}

// LogExit emits an event when the call returns without error.
func LogExit() Attr {
	return Attr{kind: attrLogExit}
}

// LogExitAt is LogExit with a custom level and message.
func LogExitAt(lvl Level, msg string) Attr {
	return Attr{kind: attrLogExit, level: lvl, hasLevel: true, text: msg}
}

// LogError emits an event when the call returns an error or panics.
func LogError() Attr {
	return Attr{kind: attrLogError}
}

// LogErrorAt is LogError with a custom level and message.
func LogErrorAt(lvl Level, msg string) Attr {
	return Attr{kind: attrLogError, level: lvl, hasLevel: true, text: msg}
}

// LogAll enables LogEnter, LogExit, and LogError together.
func LogAll() Attr {
	return Attr{kind: attrLogAll}
}

// Ret logs the call's return value on the exit event. Implies LogExit.
func Ret() Attr {
	return Attr{kind: attrRet}
}

// RetWith logs fn(value) instead of the raw return value. Implies
// LogExit.
func RetWith(fn func(v any) any) Attr {
	return Attr{kind: attrRet, retFn: fn}
}
