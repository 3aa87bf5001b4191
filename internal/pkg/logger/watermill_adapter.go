package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter routes watermill router and bus logs into ILogger under one module name.
type WatermillAdapter struct {
	log    ILogger
	module string
	fields watermill.LogFields
	trace  bool
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

func NewWatermillAdapter(log ILogger, module string, trace bool) *WatermillAdapter {
	return &WatermillAdapter{log: log, module: module, trace: trace}
}

func (a *WatermillAdapter) details(fields watermill.LogFields) map[string]interface{} {
	merged := make(map[string]interface{}, len(a.fields)+len(fields))
	for k, v := range a.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	d := a.details(fields)
	if err != nil {
		d["error"] = err.Error()
	}
	a.log.Error(a.module, msg, d)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(a.module, msg, a.details(fields))
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	if a.trace {
		a.log.Debug(a.module, msg, a.details(fields))
	}
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{
		log:    a.log,
		module: a.module,
		fields: a.fields.Add(fields),
		trace:  a.trace,
	}
}
