package logger

import "go.uber.org/zap"

// New builds the process-wide sugared logger. Development mode switches to
// the human-readable console encoder.
func New(development bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop returns a logger that discards everything. Used by tests and as a
// default when a component is constructed without one.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
