// Package baclog provides the single package-level logger every layer of
// the stack logs through: an unexported package-level *logrus.Logger with
// a SetLogger escape hatch so an embedder can redirect or silence output
// without threading a logger through every constructor.
package baclog

import "github.com/sirupsen/logrus"

var log = logrus.New()

// SetLogger replaces the package-level logger used by every stack
// component. Call it once during startup before driving the main loop.
func SetLogger(lg *logrus.Logger) {
	if lg != nil {
		log = lg
	}
}

// Get returns the current package-level logger.
func Get() *logrus.Logger { return log }

// Fields is a convenience alias so callers don't need their own logrus
// import just to build structured log entries.
type Fields = logrus.Fields

func WithFields(fields Fields) *logrus.Entry { return log.WithFields(fields) }
