package scopez

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

// logToggle is one enter/exit/error event setting.
type logToggle struct {
	msg      string
	level    Level
	on       bool
	hasLevel bool
}

// resolve returns the toggle's level and message, falling back to the
// span defaults.
func (t logToggle) resolve(defLevel Level, defMsg string) (Level, string) {
	lvl, msg := defLevel, defMsg
	if t.hasLevel {
		lvl = t.level
	}
	if t.msg != "" {
		msg = t.msg
	}
	return lvl, msg
}

// redaction masks one argument, or a path into it, in the logged view.
type redaction struct {
	path []string
	arg  int
}

type fieldFunc struct {
	fn  func(args []any) any
	key string
}

// plan is an instrumented function's resolved configuration, built
// once when the wrapper is created. Selector validation happens here:
// a bad skip or redact selector is a programmer error and panics at
// wrap time, not per call.
//
//nolint:govet // Field order optimized for readability over memory
type plan struct {
	message    string
	target     string
	level      Level
	arity      int
	argNames   []string
	skip       []bool
	skipAll    bool
	redactions []redaction
	fields     []Field
	fieldFns   []fieldFunc
	enter      logToggle
	exit       logToggle
	errlog     logToggle
	ret        bool
	retFn      func(v any) any
}

func newPlan(fn any, arity int, attrs []Attr) *plan {
	p := &plan{
		level: LevelInfo,
		arity: arity,
		skip:  make([]bool, arity),
	}
	p.message, p.target = funcName(fn)

	var (
		skipSelectors []any
		redactPaths   []string
	)

	for _, a := range attrs {
		switch a.kind {
		case attrMessage:
			p.message = a.text
		case attrTarget:
			p.target = a.text
		case attrLevel:
			p.level = a.level
		case attrSkip:
			skipSelectors = append(skipSelectors, a.selectors...)
		case attrSkipAll:
			p.skipAll = true
		case attrArgNames:
			p.argNames = append([]string(nil), a.names...)
		case attrFields:
			p.fields = append(p.fields, a.fields...)
		case attrFieldFunc:
			p.fieldFns = append(p.fieldFns, fieldFunc{key: a.text, fn: a.fieldFn})
		case attrRedact:
			redactPaths = append(redactPaths, a.names...)
		case attrLogEnter:
			p.enter = logToggle{on: true, level: a.level, hasLevel: a.hasLevel, msg: a.text}
		case attrLogExit:
			p.exit = logToggle{on: true, level: a.level, hasLevel: a.hasLevel, msg: a.text}
		case attrLogError:
			p.errlog = logToggle{on: true, level: a.level, hasLevel: a.hasLevel, msg: a.text}
		case attrLogAll:
			p.enter.on = true
			p.exit.on = true
			p.errlog.on = true
		case attrRet:
			p.ret = true
			p.retFn = a.retFn
			p.exit.on = true
		}
	}

	for _, sel := range skipSelectors {
		switch v := sel.(type) {
		case int:
			if v < 0 || v >= arity {
				panic(fmt.Sprintf("scopez: skip index %d out of range for %d argument(s)", v, arity))
			}
			p.skip[v] = true
		case string:
			idx := indexOfName(p.argNames, v)
			if idx < 0 || idx >= arity {
				panic(fmt.Sprintf("scopez: skip name %q not declared via ArgNames", v))
			}
			p.skip[idx] = true
		case []bool:
			if len(v) != arity {
				panic(fmt.Sprintf("scopez: skip mask length %d does not match %d argument(s)", len(v), arity))
			}
			for i, on := range v {
				if on {
					p.skip[i] = true
				}
			}
		default:
			panic(fmt.Sprintf("scopez: invalid skip selector type %T", sel))
		}
	}

	for _, raw := range redactPaths {
		parts := strings.Split(raw, ".")
		idx := indexOfName(p.argNames, parts[0])
		if idx < 0 {
			if n, err := strconv.Atoi(parts[0]); err == nil {
				idx = n
			}
		}
		if idx < 0 || idx >= arity {
			panic(fmt.Sprintf("scopez: redact path %q does not resolve to an argument", raw))
		}
		p.redactions = append(p.redactions, redaction{arg: idx, path: parts[1:]})
	}

	return p
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// funcName derives the default message and target from fn's runtime
// name: "pkg/path.(*Type).Method-fm" yields message "Type.Method" and
// target "path.(*Type).Method".
func funcName(fn any) (message, target string) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return "func", "func"
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "func", "func"
	}

	name := strings.TrimSuffix(rf.Name(), "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	target = name

	message = name
	if i := strings.Index(message, "."); i >= 0 {
		message = message[i+1:]
	}
	message = strings.NewReplacer("(", "", "*", "", ")", "").Replace(message)
	if message == "" {
		message = name
	}
	return message, target
}

// loggedFields builds the span field list for one call: target, the
// argument record after skip and redact rules, then static and
// computed fields.
func (p *plan) loggedFields(args []any) Fields {
	fields := Fields{F("target", p.target)}

	if !p.skipAll && p.arity > 0 {
		record := make(Fields, 0, p.arity)
		for i, arg := range args {
			if p.skip[i] {
				continue
			}
			record = append(record, F(p.argName(i), p.loggedValue(i, arg)))
		}
		if len(record) > 0 {
			fields = append(fields, F("args", record))
		}
	}

	fields = append(fields, p.fields...)
	for _, ff := range p.fieldFns {
		fields = append(fields, F(ff.key, ff.fn(args)))
	}
	return fields
}

func (p *plan) argName(i int) string {
	if i < len(p.argNames) {
		return p.argNames[i]
	}
	return "arg" + strconv.Itoa(i)
}

// loggedValue applies redactions for argument i to the logged copy.
func (p *plan) loggedValue(i int, v any) any {
	for _, r := range p.redactions {
		if r.arg != i {
			continue
		}
		if len(r.path) == 0 {
			return Redacted
		}
		v = redactPath(v, r.path)
	}
	return v
}

// redactPath returns a map-shaped copy of v with the value at path
// replaced by the Redacted marker. Only the logged view changes; the
// real argument is never touched. An unresolvable path hides the whole
// value.
func redactPath(v any, path []string) any {
	if len(path) == 0 {
		return Redacted
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Redacted
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		t := rv.Type()
		out := make(map[string]any, rv.NumField())
		matched := false
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			value := rv.Field(i).Interface()
			if f.Name == path[0] {
				matched = true
				if len(path) == 1 {
					out[f.Name] = Redacted
				} else {
					out[f.Name] = redactPath(value, path[1:])
				}
				continue
			}
			out[f.Name] = value
		}
		if !matched {
			return Redacted
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Redacted
		}
		out := make(map[string]any, rv.Len())
		matched := false
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			value := iter.Value().Interface()
			if key == path[0] {
				matched = true
				if len(path) == 1 {
					out[key] = Redacted
				} else {
					out[key] = redactPath(value, path[1:])
				}
				continue
			}
			out[key] = value
		}
		if !matched {
			return Redacted
		}
		return out
	default:
		return Redacted
	}
}

// run executes one instrumented call. invoke performs the real call
// with the original arguments against the context it receives.
// Exactly one exit reaches the subscriber on every path: return,
// error, or panic.
func (p *plan) run(ctx context.Context, args []any, invoke func(context.Context) (any, error)) (result any, err error) {
	sub, ok := SubscriberFrom(ctx)
	if !ok {
		// Tracing is never mandatory for correctness.
		return invoke(ctx)
	}

	// Fork before anything else so this call's span stack stays
	// invisible to the caller's other branches.
	forked := sub.Clone()
	fctx := WithSubscriber(ctx, forked)

	span := startSpanOn(forked, p.level, p.message, p.loggedFields(args))
	entered := span.Enter()

	if p.enter.on {
		lvl, msg := p.enter.resolve(p.level, p.message)
		emitOn(forked, lvl, msg, []Field{F("phase", "enter")})
	}

	defer func() {
		if r := recover(); r != nil {
			if p.errlog.on {
				lvl, msg := p.errlog.resolve(LevelError, p.message)
				emitOn(forked, lvl, msg, []Field{F("phase", "error"), F("panic", fmt.Sprint(r))})
			}
			entered.Exit()
			panic(r)
		}
	}()

	if cr, ok := forked.(ContextRunner); ok {
		cr.RunInContext(fctx, func(c context.Context) {
			result, err = invoke(c)
		})
	} else {
		result, err = invoke(fctx)
	}

	if err != nil {
		if p.errlog.on {
			lvl, msg := p.errlog.resolve(LevelError, p.message)
			emitOn(forked, lvl, msg, []Field{F("phase", "error"), F("error", err.Error())})
		}
		entered.Exit()
		return result, err
	}

	if p.exit.on {
		lvl, msg := p.exit.resolve(p.level, p.message)
		fields := []Field{F("phase", "exit")}
		if p.ret {
			value := result
			if p.retFn != nil {
				value = p.retFn(value)
			}
			fields = append(fields, F("return", value))
		}
		emitOn(forked, lvl, msg, fields)
	}
	entered.Exit()
	return result, err
}

// Instrument0 wraps fn so every call runs inside its own span on an
// isolated subscriber clone. Calls with no subscriber configured pass
// straight through to fn.
func Instrument0(fn func(context.Context) error, attrs ...Attr) func(context.Context) error {
	p := newPlan(fn, 0, attrs)
	return func(ctx context.Context) error {
		_, err := p.run(ctx, nil, func(c context.Context) (any, error) {
			return nil, fn(c)
		})
		return err
	}
}

// Instrument1 wraps a one-argument function. See Instrument0.
func Instrument1[A any](fn func(context.Context, A) error, attrs ...Attr) func(context.Context, A) error {
	p := newPlan(fn, 1, attrs)
	return func(ctx context.Context, a A) error {
		_, err := p.run(ctx, []any{a}, func(c context.Context) (any, error) {
			return nil, fn(c, a)
		})
		return err
	}
}

// Instrument2 wraps a two-argument function. See Instrument0.
func Instrument2[A, B any](fn func(context.Context, A, B) error, attrs ...Attr) func(context.Context, A, B) error {
	p := newPlan(fn, 2, attrs)
	return func(ctx context.Context, a A, b B) error {
		_, err := p.run(ctx, []any{a, b}, func(c context.Context) (any, error) {
			return nil, fn(c, a, b)
		})
		return err
	}
}

// Instrument3 wraps a three-argument function. See Instrument0.
func Instrument3[A, B, C any](fn func(context.Context, A, B, C) error, attrs ...Attr) func(context.Context, A, B, C) error {
	p := newPlan(fn, 3, attrs)
	return func(ctx context.Context, a A, b B, c C) error {
		_, err := p.run(ctx, []any{a, b, c}, func(cc context.Context) (any, error) {
			return nil, fn(cc, a, b, c)
		})
		return err
	}
}

// Instrument4 wraps a four-argument function. See Instrument0.
func Instrument4[A, B, C, D any](fn func(context.Context, A, B, C, D) error, attrs ...Attr) func(context.Context, A, B, C, D) error {
	p := newPlan(fn, 4, attrs)
	return func(ctx context.Context, a A, b B, c C, d D) error {
		_, err := p.run(ctx, []any{a, b, c, d}, func(cc context.Context) (any, error) {
			return nil, fn(cc, a, b, c, d)
		})
		return err
	}
}

// InstrumentR0 wraps a value-returning function. The wrapper returns
// exactly what fn returns; Ret controls whether the value also reaches
// the exit event.
func InstrumentR0[R any](fn func(context.Context) (R, error), attrs ...Attr) func(context.Context) (R, error) {
	p := newPlan(fn, 0, attrs)
	return func(ctx context.Context) (R, error) {
		out, err := p.run(ctx, nil, func(c context.Context) (any, error) {
			value, callErr := fn(c)
			return value, callErr
		})
		result, _ := out.(R)
		return result, err
	}
}

// InstrumentR1 wraps a one-argument value-returning function.
func InstrumentR1[A, R any](fn func(context.Context, A) (R, error), attrs ...Attr) func(context.Context, A) (R, error) {
	p := newPlan(fn, 1, attrs)
	return func(ctx context.Context, a A) (R, error) {
		out, err := p.run(ctx, []any{a}, func(c context.Context) (any, error) {
			value, callErr := fn(c, a)
			return value, callErr
		})
		result, _ := out.(R)
		return result, err
	}
}

// InstrumentR2 wraps a two-argument value-returning function.
func InstrumentR2[A, B, R any](fn func(context.Context, A, B) (R, error), attrs ...Attr) func(context.Context, A, B) (R, error) {
	p := newPlan(fn, 2, attrs)
	return func(ctx context.Context, a A, b B) (R, error) {
		out, err := p.run(ctx, []any{a, b}, func(c context.Context) (any, error) {
			value, callErr := fn(c, a, b)
			return value, callErr
		})
		result, _ := out.(R)
		return result, err
	}
}
